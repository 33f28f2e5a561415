package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Veraticus/glrules/internal/common"
	"github.com/Veraticus/glrules/internal/config"
	"github.com/Veraticus/glrules/internal/model"
	"github.com/Veraticus/glrules/internal/rules"
	"github.com/Veraticus/glrules/internal/storage"
	"github.com/Veraticus/glrules/internal/suggest"
)

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return config.Config{}, common.NewUserError("invalid configuration", err)
	}
	return cfg, nil
}

// initStorage opens the configured database and brings its schema up to date.
func initStorage(ctx context.Context, cfg config.Config) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

func requireOwner() (string, error) {
	owner := strings.TrimSpace(viper.GetString("owner"))
	if owner == "" {
		return "", common.NewUserError("--owner or GLRULES_OWNER is required", common.ErrMissingOwner)
	}
	return owner, nil
}

// newSuggester returns nil when the AI suggester is disabled.
func newSuggester(cfg config.SuggesterConfig) (*suggest.Suggester, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	return suggest.New(suggest.Config{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		Timeout:    cfg.Timeout,
		MaxRetries: cfg.MaxRetries,
	})
}

func evaluatorOptions(cfg config.Config, recorder rules.Recorder) ([]rules.Option, error) {
	opts := []rules.Option{rules.WithThresholds(cfg.Rules.Thresholds())}

	if cfg.Rules.CacheTTL > 0 {
		opts = append(opts, rules.WithSnapshotCache(rules.NewSnapshotCache(cfg.Rules.CacheTTL, 2*cfg.Rules.CacheTTL)))
	}
	if recorder != nil {
		opts = append(opts, rules.WithRecorder(recorder))
	}

	suggester, err := newSuggester(cfg.Suggester)
	if err != nil {
		return nil, err
	}
	if suggester != nil {
		opts = append(opts, rules.WithSuggester(suggester))
	}
	return opts, nil
}

// lineItemFlags collects a line item from command-line flags.
type lineItemFlags struct {
	vendor      string
	date        string
	description string
	amount      float64
}

func (f *lineItemFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.description, "description", "", "line item description (required)")
	cmd.Flags().StringVar(&f.vendor, "vendor", "", "vendor name")
	cmd.Flags().Float64Var(&f.amount, "amount", 0, "line item amount")
	cmd.Flags().StringVar(&f.date, "date", "", "line item date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("description")
}

func (f *lineItemFlags) lineItem(cmd *cobra.Command) (model.LineItem, error) {
	item := model.LineItem{Description: f.description}

	if cmd.Flags().Changed("vendor") {
		vendor := f.vendor
		item.VendorName = &vendor
	}
	if cmd.Flags().Changed("amount") {
		amount := f.amount
		item.Amount = &amount
	}
	if f.date != "" {
		d, err := model.ParseDate(f.date)
		if err != nil {
			return model.LineItem{}, common.NewUserError("invalid --date", err)
		}
		item.Date = &d
	}

	if err := item.Validate(); err != nil {
		return model.LineItem{}, common.NewUserError("invalid line item", err)
	}
	return item, nil
}

// decodeFile reads YAML, or JSON when the file has a .json extension.
func decodeFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		return nil
	}

	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
