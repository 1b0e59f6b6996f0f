package main

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/resolution-cli/internal/pipeline"
	"github.com/sells-group/resolution-cli/internal/store"
	"github.com/sells-group/resolution-cli/pkg/oracle"
)

// resolveEnv holds the gateway client, the caller session and the run
// store shared by the prompt/resolve/batch/serve commands.
type resolveEnv struct {
	Client  oracle.Client
	Session *pipeline.Session
	Store   store.Store // nil when run history is disabled
}

// Close tears down the session and releases the store.
func (e *resolveEnv) Close() {
	if e.Session != nil {
		e.Session.Teardown()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// NewOrchestrator builds an orchestrator on the shared session. Every
// orchestrator owns its own run state.
func (e *resolveEnv) NewOrchestrator() *pipeline.Orchestrator {
	var opts []pipeline.Option
	if e.Store != nil {
		opts = append(opts, pipeline.WithRecorder(e.Store))
	}
	return pipeline.New(e.Session, opts...)
}

// initResolve validates config for mode, opens the store and builds the
// gateway session. Callers should defer env.Close().
func initResolve(ctx context.Context, mode string) (*resolveEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	client := newGatewayClient()
	session := pipeline.NewSession(client, cfg.Gateway.AccessCode)
	session.SetDefaults(cfg.Gateway.Provider, cfg.Gateway.Model)

	zap.L().Debug("gateway session ready",
		zap.String("url", cfg.Gateway.URL),
		zap.Bool("direct", cfg.Gateway.Direct),
		zap.Bool("history", st != nil),
	)

	return &resolveEnv{Client: client, Session: session, Store: st}, nil
}

func newGatewayClient() oracle.Client {
	opts := []oracle.Option{
		oracle.WithBaseURL(cfg.Gateway.URL),
		oracle.WithDirect(cfg.Gateway.Direct),
		oracle.WithTimeouts(cfg.Gateway.ReadTimeout(), cfg.Gateway.WriteTimeout()),
	}
	if cfg.Gateway.RatePerSec > 0 {
		burst := int(math.Ceil(cfg.Gateway.RatePerSec))
		opts = append(opts, oracle.WithRateLimit(cfg.Gateway.RatePerSec, burst))
	}
	return oracle.NewClient(opts...)
}

// initStore opens the configured store. It returns nil, nil when the
// driver is "none".
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "resolution.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	case "none":
		return nil, nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore opens and migrates the configured store.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil || st == nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// requireStore opens the store for history commands, which cannot run
// without one.
func requireStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}
	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, eris.New("run history is disabled (store.driver is none)")
	}
	return st, nil
}

// defaultJob is the job template built from config; flags and request
// bodies are merged over it.
func defaultJob() pipeline.Job {
	return pipeline.Job{
		Prompt: pipeline.PromptRequest{
			StrictMode: cfg.Pipeline.StrictMode,
		},
		Resolve: pipeline.ResolveRequest{
			Collectors: cfg.Pipeline.Collectors,
			Mode:       cfg.Pipeline.Mode,
		},
		SingleCall: cfg.Pipeline.SingleCall,
	}
}
