package main

import (
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadflow/internal/router"
)

var (
	routeIndustry string
	routeLocation string
	routeCompany  string
	routeMinPerf  float64
	routeMaxPerf  float64
	routeLimit    int
)

var routeCmd = &cobra.Command{
	Use:   "route <query words...>",
	Short: "Route a research query to the matching industry database",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		r, err := initRouter()
		if err != nil {
			return err
		}

		q := router.Query{
			Text:        strings.Join(args, " "),
			Industry:    routeIndustry,
			Location:    routeLocation,
			CompanyName: routeCompany,
			Limit:       routeLimit,
		}
		if cmd.Flags().Changed("min-performance") {
			q.MinPerformance = &routeMinPerf
		}
		if cmd.Flags().Changed("max-performance") {
			q.MaxPerformance = &routeMaxPerf
		}

		result := r.RouteQuery(ctx, q)
		zap.L().Info("query routed",
			zap.String("industry", result.Industry),
			zap.String("method", result.Method),
			zap.Int("companies", len(result.Companies)),
			zap.Int64("latency_ms", result.LatencyMS),
		)
		return printJSON(result)
	},
}

func init() {
	routeCmd.Flags().StringVar(&routeIndustry, "industry", "", "explicit industry, skips detection")
	routeCmd.Flags().StringVar(&routeLocation, "location", "", "location substring filter")
	routeCmd.Flags().StringVar(&routeCompany, "company", "", "company name substring filter")
	routeCmd.Flags().Float64Var(&routeMinPerf, "min-performance", 0, "minimum performance score")
	routeCmd.Flags().Float64Var(&routeMaxPerf, "max-performance", 0, "maximum performance score")
	routeCmd.Flags().IntVar(&routeLimit, "limit", 0, "maximum companies (default 50, capped at 100)")
	rootCmd.AddCommand(routeCmd)
}
