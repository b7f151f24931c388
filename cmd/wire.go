package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/pitwall/pitwall/config"
	"github.com/ZanzyTHEbar/pitwall/pitwall/db"
	"github.com/ZanzyTHEbar/pitwall/pitwall/enrichment"
	"github.com/ZanzyTHEbar/pitwall/pitwall/generation/harness"
	"github.com/ZanzyTHEbar/pitwall/pitwall/generation/harness/tools"
	"github.com/ZanzyTHEbar/pitwall/pitwall/live"
	"github.com/ZanzyTHEbar/pitwall/pitwall/logging"
	"github.com/ZanzyTHEbar/pitwall/pitwall/rulebook"
	"github.com/ZanzyTHEbar/pitwall/pitwall/upstream"
)

var errNoDatabase = errors.New("database unavailable")

type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	db     *sql.DB // nil when the database could not be opened

	ergast  *upstream.Ergast
	openf1  *upstream.OpenF1
	tavily  *upstream.Tavily
	cache   *enrichment.Cache
	rules   *rulebook.Store
	tools   *tools.Registry
	factory *harness.Factory
}

// wireApp loads config and builds every backend. With requireDB unset a
// database failure is logged and the app runs without the rulebook and
// conversation history.
func wireApp(ctx context.Context, opts *rootOptions, requireDB bool) (*app, error) {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := logging.New(cfg.Server.Environment, opts.logLevel)

	a := &app{cfg: cfg, logger: logger}

	conn, err := db.Open(ctx, cfg.Database.DSN, logger)
	switch {
	case err != nil && requireDB:
		return nil, fmt.Errorf("%w: %v", errNoDatabase, err)
	case err != nil:
		logger.Warn().Err(err).Str("dsn", cfg.Database.DSN).Msg("running without database")
	default:
		a.db = conn
		a.rules = rulebook.NewStore(conn, logger)
	}

	client := upstream.NewClientFromConfig(&cfg.Upstream, logger)
	a.ergast = upstream.NewErgast(client, cfg.Upstream.ErgastBaseURL)
	a.openf1 = upstream.NewOpenF1(client, cfg.Live.OpenF1BaseURL)
	a.tavily = upstream.NewTavily(client, cfg.Search.TavilyBaseURL, cfg.Search.TavilyAPIKey)

	loader := enrichment.NewSessionLoader(a.ergast, cfg.Enrichment.CompletionBuffer(), logger)
	a.cache = enrichment.NewCache(
		enrichment.NewStore(),
		enrichment.NewLoaderLock(),
		loader,
		logger,
		enrichment.WithCompletionBuffer(cfg.Enrichment.CompletionBuffer()),
	)

	src := tools.Sources{
		Season:      a.ergast,
		Cache:       a.cache,
		LoadTimeout: cfg.Enrichment.LoadTimeout(),
		RulebookTop: cfg.Rulebook.TopK,
		Web:         a.tavily,
	}
	if a.rules != nil {
		src.Rulebook = a.rules
	}
	a.tools = tools.Default(src)
	a.factory = harness.NewFactory(&cfg.Harness, &cfg.LLM, a.db, logger)

	return a, nil
}

func (a *app) scheduler() *enrichment.Scheduler {
	s := a.cfg.Scheduler
	return enrichment.NewScheduler(a.cache, a.ergast, enrichment.SchedulerConfig{
		StartupDelay:    s.StartupDelay(),
		Interval:        s.Interval(),
		InterRoundDelay: s.InterRoundDelay(),
		RoundTimeout:    s.RoundTimeout(),
		Buffer:          a.cfg.Enrichment.CompletionBuffer(),
	}, a.logger)
}

func (a *app) gateway() *live.Gateway {
	return live.NewGateway(live.NewRegistry(), a.openf1, a.ergast, live.Config{
		PollInterval:   a.cfg.Live.PollInterval(),
		ReceiveTimeout: a.cfg.Live.ReceiveTimeout(),
		AllowedOrigins: a.cfg.Server.AllowedOrigins,
	}, a.logger)
}

func (a *app) watcher() *rulebook.Watcher {
	return rulebook.NewWatcher(rulebook.NewIngester(a.rules, a.logger), a.cfg.Rulebook.SourceDir, 500*time.Millisecond, a.logger)
}

func (a *app) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("failed to close database")
		}
	}
}
