package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadflow/internal/model"
	"github.com/sells-group/leadflow/internal/monitoring"
	"github.com/sells-group/leadflow/internal/pipeline"
	"github.com/sells-group/leadflow/internal/store"
	"github.com/sells-group/leadflow/pkg/supabase"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook and status server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
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

		var sb supabase.Client
		if cfg.Supabase.URL != "" {
			if sb, err = initSupabase(); err != nil {
				return err
			}
		}

		// Background alert checker.
		checker := monitoring.NewChecker(
			monitoring.NewCollector(st, p.Breakers()),
			monitoring.NewAlerter(cfg.Monitoring),
			cfg.Monitoring,
		)
		go checker.Run(ctx)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newServeMux(ctx, st, p, sb),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			_ = srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// newServeMux builds the HTTP routes. runCtx outlives individual requests so
// async workflow runs survive the webhook response.
func newServeMux(runCtx context.Context, st store.Store, p *pipeline.Pipeline, sb supabase.Client) *http.ServeMux {
	mux := http.NewServeMux()
	collector := monitoring.NewCollector(st, p.Breakers())

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		report := monitoring.CheckHealth(r.Context(), st, sb)
		status := http.StatusOK
		if !report.Healthy {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, report)
	})

	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		snap, err := collector.Collect(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "stats collection failed"})
			return
		}
		writeJSON(w, http.StatusOK, snap)
	})

	mux.HandleFunc("POST /webhook/lead", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			CompanyName  string `json:"company_name"`
			Website      string `json:"website"`
			Industry     string `json:"industry"`
			CompanySize  *int   `json:"company_size"`
			Location     string `json:"location"`
			ContactEmail string `json:"contact_email"`
			ContactName  string `json:"contact_name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if req.CompanyName == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "company_name is required"})
			return
		}

		lead := &model.Lead{
			CompanyName:  req.CompanyName,
			Website:      req.Website,
			Industry:     req.Industry,
			CompanySize:  req.CompanySize,
			Location:     req.Location,
			ContactEmail: req.ContactEmail,
			ContactName:  req.ContactName,
			Stage:        model.StageNew,
		}

		// Run the workflow asynchronously; the webhook only acknowledges.
		go func() {
			result, err := p.Run(runCtx, lead)
			if err != nil {
				zap.L().Error("webhook workflow failed",
					zap.String("company", lead.CompanyName),
					zap.Error(err),
				)
				return
			}
			zap.L().Info("webhook workflow complete",
				zap.String("company", lead.CompanyName),
				zap.String("final_stage", string(result.FinalStage)),
			)
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{
			"status":  "accepted",
			"company": req.CompanyName,
		})
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
