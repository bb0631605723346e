package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadflow/internal/model"
	"github.com/sells-group/leadflow/internal/pipeline"
)

var (
	runCompany  string
	runWebsite  string
	runIndustry string
	runSize     int
	runLocation string
	runEmail    string
	runContact  string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the workflow for a single lead",
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

		lead := &model.Lead{
			CompanyName:  runCompany,
			Website:      runWebsite,
			Industry:     runIndustry,
			Location:     runLocation,
			ContactEmail: runEmail,
			ContactName:  runContact,
			Stage:        model.StageNew,
		}
		if runSize > 0 {
			lead.CompanySize = &runSize
		}

		result, err := p.Run(ctx, lead)
		if err != nil {
			return eris.Wrap(err, "workflow run")
		}

		zap.L().Info("workflow complete",
			zap.String("company", lead.CompanyName),
			zap.String("final_stage", string(result.FinalStage)),
			zap.Float64("score", result.Lead.Score),
			zap.Float64("cost_usd", result.CostUSD),
		)

		return printJSON(result)
	},
}

func init() {
	runCmd.Flags().StringVar(&runCompany, "company", "", "company name (required)")
	runCmd.Flags().StringVar(&runWebsite, "website", "", "company website")
	runCmd.Flags().StringVar(&runIndustry, "industry", "", "industry label")
	runCmd.Flags().IntVar(&runSize, "size", 0, "employee count")
	runCmd.Flags().StringVar(&runLocation, "location", "", "company location")
	runCmd.Flags().StringVar(&runEmail, "email", "", "contact email")
	runCmd.Flags().StringVar(&runContact, "contact", "", "contact name")
	_ = runCmd.MarkFlagRequired("company")
	rootCmd.AddCommand(runCmd)
}
