package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leadflow/internal/router"
	"github.com/sells-group/leadflow/internal/scoring"
	"github.com/sells-group/leadflow/internal/store"
	anthropicpkg "github.com/sells-group/leadflow/pkg/anthropic"
	"github.com/sells-group/leadflow/pkg/mail"
	sfpkg "github.com/sells-group/leadflow/pkg/salesforce"
	"github.com/sells-group/leadflow/pkg/supabase"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "leadflow.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initLLM returns nil when the LLM is disabled; every caller has a
// deterministic fallback path.
func initLLM() anthropicpkg.Client {
	if cfg.Anthropic.Disabled || cfg.Anthropic.Key == "" {
		return nil
	}
	return anthropicpkg.NewClient(cfg.Anthropic.Key)
}

func initSender() (mail.Sender, error) {
	if cfg.Mail.Host == "" {
		return nil, nil
	}
	return mail.NewSMTPSender(mail.SMTPConfig{
		Host:          cfg.Mail.Host,
		Port:          cfg.Mail.Port,
		Username:      cfg.Mail.Username,
		Password:      cfg.Mail.Password,
		FromEmail:     cfg.Mail.From,
		FromName:      cfg.Mail.FromName,
		DemoRecipient: cfg.Mail.DemoRecipient,
	})
}

func initSalesforce() (sfpkg.Client, error) {
	if cfg.Salesforce.ClientID == "" {
		return nil, nil
	}

	pemData, err := os.ReadFile(cfg.Salesforce.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "read salesforce JWT private key")
	}

	sf, err := salesforce.Init(salesforce.Creds{
		Domain:         cfg.Salesforce.LoginURL,
		Username:       cfg.Salesforce.Username,
		ConsumerKey:    cfg.Salesforce.ClientID,
		ConsumerRSAPem: string(pemData),
	})
	if err != nil {
		return nil, eris.Wrap(err, "init salesforce")
	}

	return sfpkg.NewClient(sf), nil
}

func initSupabase() (supabase.Client, error) {
	if cfg.Supabase.URL == "" {
		return nil, eris.New("supabase.url is required (LEADFLOW_SUPABASE_URL)")
	}
	return supabase.NewClient(cfg.Supabase.URL, cfg.Supabase.Key,
		supabase.WithRateLimit(cfg.Supabase.RateLimitPS)), nil
}

func initRouter() (*router.Router, error) {
	keywords, err := router.LoadKeywords(cfg.Router.KeywordsPath)
	if err != nil {
		return nil, err
	}
	client, err := initSupabase()
	if err != nil {
		return nil, err
	}
	return router.New(client, keywords,
		router.WithLimits(cfg.Router.DefaultLimit, cfg.Router.MaxLimit)), nil
}

func initScoring() (*scoring.Scorer, scoring.Thresholds, error) {
	weights, thresholds, err := scoring.LoadConfig(cfg.Scoring.WeightsPath)
	if err != nil {
		return nil, scoring.Thresholds{}, err
	}
	return scoring.NewScorer(weights), thresholds, nil
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
