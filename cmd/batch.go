package main

import (
	"sync"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/leadflow/internal/importer"
	"github.com/sells-group/leadflow/internal/pipeline"
)

var batchFile string

// batchSummary is the JSON report printed after a batch run.
type batchSummary struct {
	Imported  int            `json:"imported"`
	Skipped   int            `json:"skipped"`
	Completed int            `json:"completed"`
	Failed    int            `json:"failed"`
	ByStage   map[string]int `json:"by_stage"`
	CostUSD   float64        `json:"cost_usd"`
	Errors    []string       `json:"errors,omitempty"`
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Import leads from CSV/XLSX and run the workflow for each",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("pipeline"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		imported, err := importer.FromFile(ctx, batchFile)
		if err != nil {
			return eris.Wrap(err, "import leads")
		}
		zap.L().Info("leads imported",
			zap.String("file", batchFile),
			zap.Int("imported", len(imported.Leads)),
			zap.Int("skipped", imported.Skipped),
		)

		sender, err := initSender()
		if err != nil {
			return err
		}
		sfClient, err := initSalesforce()
		if err != nil {
			return err
		}
		scorer, thresholds, err := initScoring()
		if err != nil {
			return err
		}

		p := pipeline.New(cfg, st, initLLM(), sender, sfClient, scorer, thresholds)

		summary := batchSummary{
			Imported: len(imported.Leads),
			Skipped:  imported.Skipped,
			ByStage:  make(map[string]int),
			Errors:   imported.Errors,
		}

		var mu sync.Mutex
		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(cfg.Batch.MaxConcurrentLeads)

		for i := range imported.Leads {
			lead := imported.Leads[i]
			g.Go(func() error {
				result, runErr := p.Run(gCtx, &lead)

				mu.Lock()
				defer mu.Unlock()
				if runErr != nil {
					summary.Failed++
					summary.Errors = append(summary.Errors, lead.CompanyName+": "+runErr.Error())
					zap.L().Error("batch: workflow failed",
						zap.String("company", lead.CompanyName),
						zap.Error(runErr),
					)
					// One bad lead must not cancel the batch.
					return nil
				}
				summary.Completed++
				summary.ByStage[string(result.FinalStage)]++
				summary.CostUSD += result.CostUSD
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return eris.Wrap(err, "batch run")
		}

		zap.L().Info("batch complete",
			zap.Int("completed", summary.Completed),
			zap.Int("failed", summary.Failed),
			zap.Float64("cost_usd", summary.CostUSD),
		)

		return printJSON(summary)
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchFile, "file", "", "CSV or XLSX file of leads (required)")
	_ = batchCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(batchCmd)
}
