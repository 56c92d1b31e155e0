/*
main.go - Application entry point

PURPOSE:
  Thin wrapper around the cobra command tree. All startup logic lives in
  the cli package so it stays testable.

EXAMPLES:
  # One-shot pipeline run over a dump directory
  sentinel run --data-dir=./data

  # Persist the run and quarantine unrecognized states
  sentinel run --data-dir=./data --db=sentinel.db --region-policy=quarantine --persist

  # Serve the dashboard API
  sentinel serve --data-dir=./data --db=sentinel.db --addr=:8080

SEE ALSO:
  - cli/root.go: Command tree and composition
*/
package main

import "github.com/haldar/aadhaar-sentinel/cli"

func main() {
	cli.Execute()
}
