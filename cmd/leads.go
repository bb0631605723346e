package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadflow/internal/model"
	"github.com/sells-group/leadflow/internal/store"
)

var (
	leadsStage    string
	leadsIndustry string
	leadsCompany  string
	leadsMinScore float64
	leadsSortBy   string
	leadsLimit    int
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Inspect stored leads",
}

var leadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List leads matching the given filters",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		filter := store.LeadFilter{
			Industry:    leadsIndustry,
			CompanyName: leadsCompany,
			SortBy:      leadsSortBy,
			Limit:       leadsLimit,
		}
		if leadsStage != "" {
			stage := model.Stage(leadsStage)
			if !stage.IsValid() {
				return eris.Errorf("unknown stage %q", leadsStage)
			}
			filter.Stage = stage
		}
		if cmd.Flags().Changed("min-score") {
			filter.MinScore = &leadsMinScore
		}

		leads, err := st.SearchLeads(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "search leads")
		}
		return printJSON(leads)
	},
}

var leadsGetCmd = &cobra.Command{
	Use:   "get <lead-id>",
	Short: "Show a single lead with its interaction history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		lead, err := st.GetLead(ctx, args[0])
		if err != nil {
			return eris.Wrapf(err, "get lead %s", args[0])
		}
		return printJSON(lead)
	},
}

var leadsDeleteCmd = &cobra.Command{
	Use:   "delete <lead-id>",
	Short: "Delete a lead and its workflow history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.DeleteLead(ctx, args[0]); err != nil {
			return eris.Wrapf(err, "delete lead %s", args[0])
		}
		return printJSON(map[string]string{"deleted": args[0]})
	},
}

var leadsRunsCmd = &cobra.Command{
	Use:   "runs <lead-id>",
	Short: "List workflow runs for a lead",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		runs, err := st.ListWorkflowRuns(ctx, args[0])
		if err != nil {
			return eris.Wrapf(err, "list runs for lead %s", args[0])
		}
		return printJSON(runs)
	},
}

var leadsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate pipeline statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		stats, err := st.Stats(ctx)
		if err != nil {
			return eris.Wrap(err, "pipeline stats")
		}
		return printJSON(stats)
	},
}

func init() {
	leadsListCmd.Flags().StringVar(&leadsStage, "stage", "", "filter by pipeline stage")
	leadsListCmd.Flags().StringVar(&leadsIndustry, "industry", "", "filter by industry")
	leadsListCmd.Flags().StringVar(&leadsCompany, "company", "", "filter by company name substring")
	leadsListCmd.Flags().Float64Var(&leadsMinScore, "min-score", 0, "minimum composite score")
	leadsListCmd.Flags().StringVar(&leadsSortBy, "sort", "score", "sort by score, created_at or updated_at")
	leadsListCmd.Flags().IntVar(&leadsLimit, "limit", 50, "maximum results (capped at 100)")

	leadsCmd.AddCommand(leadsListCmd, leadsGetCmd, leadsDeleteCmd, leadsRunsCmd, leadsStatsCmd)
	rootCmd.AddCommand(leadsCmd)
}
