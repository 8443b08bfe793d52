package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/dealzen/deals-cli/internal/ingest"
	"github.com/dealzen/deals-cli/internal/queue"
	"github.com/dealzen/deals-cli/internal/validate"
	anthropicpkg "github.com/dealzen/deals-cli/pkg/anthropic"
	"github.com/dealzen/deals-cli/pkg/weaviate"
)

// pipelineEnv holds the initialized clients and collaborators shared by the
// process/ingest/queue/serve commands.
type pipelineEnv struct {
	Queue     *queue.RetryQueue
	Validator *validate.Validator
	Search    weaviate.Client
	Anthropic anthropicpkg.Client
	Gate      *ingest.Gate
}

// Close releases resources held by the environment.
func (pe *pipelineEnv) Close() {
	if pe.Queue != nil {
		_ = pe.Queue.Close()
	}
}

// initStorage builds the retry-queue storage backend selected by config.
func initStorage(ctx context.Context) (queue.Storage, error) {
	switch cfg.Store.Driver {
	case "", "file":
		return queue.NewFileStorage(cfg.Store.Dir)
	case "sqlite":
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("store.database_url required for sqlite driver")
		}
		return queue.NewSQLiteStorage(ctx, cfg.Store.DatabaseURL)
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("store.database_url required for postgres driver")
		}
		return queue.NewPostgresStorage(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// initEnv sets up queue storage, the validator, and the API clients.
// Callers should defer env.Close().
func initEnv(ctx context.Context) (*pipelineEnv, error) {
	storage, err := initStorage(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "init queue storage")
	}
	q := queue.New(storage)

	valCfg := cfg.Validate
	if validate.WeightSum(valCfg) == 0 {
		valCfg = validate.DefaultConfig()
	}
	if rulesFile != "" {
		if err := validate.LoadRules(rulesFile, &valCfg); err != nil {
			_ = q.Close()
			return nil, eris.Wrap(err, "load validation rules")
		}
		zap.L().Info("validation rules loaded", zap.String("file", rulesFile))
	}
	if err := validate.ValidateConfig(valCfg); err != nil {
		_ = q.Close()
		return nil, eris.Wrap(err, "validation rules")
	}

	search := weaviate.NewClient(
		weaviate.WithBaseURL(cfg.Weaviate.BaseURL),
		weaviate.WithAPIKey(cfg.Weaviate.APIKey),
		weaviate.WithVectorizerKey(cfg.Weaviate.VectorizerKey),
		weaviate.WithCollection(cfg.Weaviate.Collection),
		weaviate.WithAlpha(cfg.Weaviate.Alpha),
		weaviate.WithLimit(cfg.Weaviate.Limit),
	)

	validator := validate.New(valCfg)
	return &pipelineEnv{
		Queue:     q,
		Validator: validator,
		Search:    search,
		Anthropic: anthropicpkg.NewClient(cfg.Anthropic.Key),
		Gate:      ingest.NewGate(validator, search, q),
	}, nil
}

// rulesFile is the optional standalone validation rules YAML, shared as a
// persistent flag by the commands that validate.
var rulesFile string

func init() {
	rootCmd.PersistentFlags().StringVar(&rulesFile, "rules", "", "validation rules YAML file (overrides defaults)")
}
