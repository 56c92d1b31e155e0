/*
run.go - One-shot pipeline command

PURPOSE:
  `sentinel run` executes a single load-aggregate-merge-score pass over
  the configured dataset directory and prints a run summary. With
  --persist the run is also written to the configured store, so a later
  `sentinel serve` can list it as history.
*/
package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/haldar/aadhaar-sentinel/store"
	"github.com/haldar/aadhaar-sentinel/table"
)

var (
	runPersist bool
	runShowTop int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline once and print a summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		runner, err := buildRunner(cfg)
		if err != nil {
			return err
		}
		detector := buildDetector(cfg)

		res, err := runner.Run(cmd.Context())
		if err != nil {
			return err
		}
		scored := detector.Annotate(res.Table)

		fmt.Printf("📦 Dataset: %s\n", cfg.DataDir)
		for _, s := range res.Stats {
			fmt.Printf("   %-12s %d files read, %d skipped, %d rows kept (%d bad dates, %d quarantined)\n",
				s.Category, s.FilesRead, s.FilesSkipped, s.RowsKept, s.RowsDroppedBadDate, s.RowsQuarantined)
		}
		fmt.Printf("✅ Analysis table: %d rows in %s\n", res.Table.Len(), res.Duration().Round(time.Millisecond))
		if scored.Scored {
			fmt.Printf("🚨 Anomalies: %d of %d rows flagged (contamination %.2f%%)\n",
				scored.Flagged(), res.Table.Len(), detector.Config.Contamination*100)
		} else {
			fmt.Println("🚨 Anomalies: scoring skipped (too few rows or no feature columns)")
		}
		if held := res.QuarantinedStates(); len(held) > 0 {
			fmt.Printf("🧹 Quarantined region values: %d\n", len(held))
			for value, rows := range held {
				fmt.Printf("   %q (%d rows)\n", value, rows)
			}
		}

		printTopAnomalies(res.Table, scored.Scores, scored.Flags, scored.Reasons, runShowTop)

		if runPersist {
			st, closeStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			run, records, quarantined := store.NewRun(res, *scored, detector.Config, cfg.DataDir)
			if err := st.SaveRun(cmd.Context(), run, records, quarantined); err != nil {
				return fmt.Errorf("persist run: %w", err)
			}
			if cfg.KeepRuns > 0 {
				if _, err := st.Prune(cmd.Context(), cfg.KeepRuns); err != nil {
					return fmt.Errorf("prune run history: %w", err)
				}
			}
			fmt.Printf("💾 Saved run %s\n", run.ID)
		}
		return nil
	},
}

func printTopAnomalies(t *table.Table, scores []float64, flags []bool, reasons []string, max int) {
	type flagged struct {
		i     int
		score float64
	}
	var rows []flagged
	for i, f := range flags {
		if f {
			rows = append(rows, flagged{i, scores[i]})
		}
	}
	if len(rows) == 0 || max <= 0 {
		return
	}
	// Most anomalous first.
	for a := 1; a < len(rows); a++ {
		for b := a; b > 0 && rows[b].score < rows[b-1].score; b-- {
			rows[b], rows[b-1] = rows[b-1], rows[b]
		}
	}
	if len(rows) > max {
		rows = rows[:max]
	}

	fmt.Println("\nTop anomalies:")
	for _, f := range rows {
		r := t.Rows[f.i]
		fmt.Printf("  %s  %s / %s / %s  score=%.4f\n      %s\n",
			table.FormatDate(r.Date), r.State, r.District, r.Pincode, f.score, reasons[f.i])
	}
}

func init() {
	runCmd.Flags().BoolVar(&runPersist, "persist", false, "save the run to the configured store")
	runCmd.Flags().IntVar(&runShowTop, "top", 10, "how many anomalies to print (0 disables)")
	rootCmd.AddCommand(runCmd)
}
