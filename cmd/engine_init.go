package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/claimclaw/contest-cli/internal/checkpoint"
	"github.com/claimclaw/contest-cli/internal/draft"
	"github.com/claimclaw/contest-cli/internal/escalate"
	"github.com/claimclaw/contest-cli/internal/evidence"
	"github.com/claimclaw/contest-cli/internal/resilience"
	"github.com/claimclaw/contest-cli/internal/workflow"
	anthropicpkg "github.com/claimclaw/contest-cli/pkg/anthropic"
)

// engineEnv holds the initialized store and engine shared by the case
// commands. Callers should defer env.Close().
type engineEnv struct {
	Store  checkpoint.Store
	Engine *workflow.Engine
}

func (e *engineEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (checkpoint.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.Path
		if path == "" {
			path = "claimclaw_state.sqlite"
		}
		return checkpoint.NewSQLite(path)
	case "postgres":
		return checkpoint.NewPostgres(ctx, cfg.Store.DatabaseURL, &checkpoint.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEngine sets up the store, capability ports, and the workflow engine.
func initEngine(ctx context.Context) (*engineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	var drafter draft.Drafter = draft.NewTemplateDrafter()
	if cfg.Draft.UseClaude {
		if cfg.Anthropic.Key == "" {
			_ = st.Close()
			return nil, eris.New("anthropic key is required when draft.use_claude is set (CLAIMCLAW_ANTHROPIC_KEY)")
		}
		client := anthropicpkg.NewClient(cfg.Anthropic.Key)
		drafter = draft.NewClaudeDrafter(client, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens)
		zap.L().Info("claude drafting enabled", zap.String("model", cfg.Anthropic.Model))
	}

	filer := escalate.NewPortalFiler(escalate.PortalFilerConfig{
		RequestsPerMinute: cfg.Portal.RequestsPerMinute,
	})

	retry := resilience.DefaultRetryConfig()
	if cfg.Draft.RetryAttempts > 0 {
		retry.MaxAttempts = cfg.Draft.RetryAttempts
	}
	if cfg.Draft.RetryBackoffMillis > 0 {
		retry.InitialBackoff = time.Duration(cfg.Draft.RetryBackoffMillis) * time.Millisecond
	}
	retry.ShouldRetry = func(error) bool { return true }
	retry.OnRetry = resilience.RetryLogger("drafter", "draft_rebuttal")

	engine := workflow.New(workflow.Config{
		DraftRetry:   retry,
		StageTimeout: time.Duration(cfg.Workflow.StageTimeoutSecs) * time.Second,
	}, st, evidence.NewTextExtractor(), drafter, filer)

	return &engineEnv{Store: st, Engine: engine}, nil
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
