package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadflow/internal/intel"
)

var (
	intelDocs []string
	intelJSON bool
)

var intelCmd = &cobra.Command{
	Use:   "intel <lead-id>",
	Short: "Generate a strategic intelligence report for a lead",
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

		var docs []string
		for _, path := range intelDocs {
			data, readErr := os.ReadFile(path)
			if readErr != nil {
				return eris.Wrapf(readErr, "read document %s", path)
			}
			docs = append(docs, string(data))
		}

		engine := intel.NewEngine(initLLM(), cfg)
		report := engine.GenerateReport(ctx, lead, docs)

		if intelJSON {
			out, jsonErr := report.RenderJSON()
			if jsonErr != nil {
				return eris.Wrap(jsonErr, "render report")
			}
			fmt.Println(out)
			return nil
		}
		fmt.Print(report.RenderText())
		return nil
	},
}

func init() {
	intelCmd.Flags().StringSliceVar(&intelDocs, "doc", nil, "document file to analyze (repeatable)")
	intelCmd.Flags().BoolVar(&intelJSON, "json", false, "emit the report as JSON")
	rootCmd.AddCommand(intelCmd)
}
