package main

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadflow/internal/outreach"
	"github.com/sells-group/leadflow/internal/router"
)

var outreachIndustry string

var outreachCmd = &cobra.Command{
	Use:   "outreach <query words...>",
	Short: "Run an email campaign against routed companies",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("outreach"); err != nil {
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
		r, err := initRouter()
		if err != nil {
			return err
		}

		routed := r.RouteQuery(ctx, router.Query{
			Text:     strings.Join(args, " "),
			Industry: outreachIndustry,
		})
		if routed.Error != "" {
			return eris.Errorf("route query: %s", routed.Error)
		}

		campaign := outreach.New(sender, st, r.Stats(), cfg.Mail.FromName,
			outreach.WithRateLimit(cfg.Outreach.RateLimitPS),
			outreach.WithFailureStrikes(cfg.Outreach.FailureStrikes),
			outreach.WithMaxAttempts(cfg.Outreach.MaxAttempts),
		)

		result, err := campaign.Run(ctx, routed)
		if err != nil {
			return eris.Wrap(err, "campaign run")
		}

		zap.L().Info("campaign complete",
			zap.String("industry", result.Industry),
			zap.Int("sent", result.Sent),
			zap.Int("failed", result.Failed),
			zap.Int("parked", result.Parked),
		)
		return printJSON(result)
	},
}

var outreachRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Retry parked campaign sends that are due",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("outreach"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		sender, err := initSender()
		if err != nil {
			return err
		}

		campaign := outreach.New(sender, st, nil, cfg.Mail.FromName,
			outreach.WithRateLimit(cfg.Outreach.RateLimitPS),
			outreach.WithFailureStrikes(cfg.Outreach.FailureStrikes),
			outreach.WithMaxAttempts(cfg.Outreach.MaxAttempts),
		)

		result, err := campaign.RetryParked(ctx)
		if err != nil {
			return eris.Wrap(err, "retry parked")
		}

		zap.L().Info("retry complete",
			zap.Int("sent", result.Sent),
			zap.Int("failed", result.Failed),
		)
		return printJSON(result)
	},
}

func init() {
	outreachCmd.Flags().StringVar(&outreachIndustry, "industry", "", "explicit industry, skips detection")
	outreachCmd.AddCommand(outreachRetryCmd)
	rootCmd.AddCommand(outreachCmd)
}
