/*
states.go - Canonical region listing

PURPOSE:
  `sentinel states` prints the closed enumeration of the 36 states and
  union territories, the authoritative grouping values every raw spelling
  resolves to. Useful when writing alias override files.
*/
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haldar/aadhaar-sentinel/dataset"
)

var statesCmd = &cobra.Command{
	Use:   "states",
	Short: "Print the canonical state and union-territory names",
	Run: func(cmd *cobra.Command, args []string) {
		for _, s := range dataset.CanonicalStates() {
			fmt.Println(s)
		}
	},
}

func init() {
	rootCmd.AddCommand(statesCmd)
}
