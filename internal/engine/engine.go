// Package engine wires stores and services from configuration. The HTTP
// server and the CLI both start from here.
package engine

import (
	"context"
	"fmt"

	"github.com/Harshitk-cp/selfgraph/internal/citation"
	"github.com/Harshitk-cp/selfgraph/internal/config"
	"github.com/Harshitk-cp/selfgraph/internal/domain"
	"github.com/Harshitk-cp/selfgraph/internal/memstore"
	"github.com/Harshitk-cp/selfgraph/internal/service"
	"github.com/Harshitk-cp/selfgraph/internal/sidestore"
	"github.com/Harshitk-cp/selfgraph/internal/store"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Options struct {
	DatabaseURL string
	RedisURL    string
	// InMemory ignores both URLs and keeps everything in process.
	InMemory bool

	BatchSize            int
	SuggestionDailyLimit int
	VisibilityThreshold  float64
	PersonasPath         string
	AuthorityPath        string
}

// OptionsFromConfig reads Options from the environment.
func OptionsFromConfig() Options {
	return Options{
		DatabaseURL:          config.DatabaseURL(),
		RedisURL:             config.RedisURL(),
		BatchSize:            config.ReconcileBatchSize(),
		SuggestionDailyLimit: config.SuggestionDailyLimit(),
		VisibilityThreshold:  config.VisibilityThreshold(),
		PersonasPath:         config.PersonasConfig(),
		AuthorityPath:        config.CitationAuthorityConfig(),
	}
}

// Pinger is a backend connection that can be health-checked.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Engine struct {
	Resolver    *service.ResolverService
	Belief      *service.BeliefService
	Suggestions *service.SuggestionService
	Conflicts   *service.ConflictService
	Profile     *service.ProfileService

	// Health lists the backing services that can be pinged.
	Health map[string]Pinger

	closers []func()
}

type stores struct {
	entities  domain.EntityStore
	citations domain.CitationStore
	decisions domain.MergeDecisionStore
	committer domain.BatchCommitter
	side      domain.SideStore
	writer    domain.WriteLocker
}

// Open connects the configured backends and builds every service. Postgres
// is required unless InMemory is set; without REDIS_URL the side store
// lives in process memory.
func Open(ctx context.Context, opts Options, logger *zap.Logger) (*Engine, error) {
	eng := &Engine{Health: map[string]Pinger{}}

	var st stores
	switch {
	case opts.InMemory:
		ms := memstore.New()
		st = stores{ms, memstore.CitationStore{Store: ms}, ms, ms, memstore.NewSideStore(), memstore.NewWriterLock()}
		logger.Info("using in-memory stores")

	default:
		if opts.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
		pool, err := pgxpool.New(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		eng.closers = append(eng.closers, pool.Close)
		if err := pool.Ping(ctx); err != nil {
			eng.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		if err := store.ApplySchema(ctx, pool); err != nil {
			eng.Close()
			return nil, err
		}
		eng.Health["postgres"] = pool
		logger.Info("connected to database")

		st = stores{
			entities:  store.NewEntityStore(pool),
			citations: store.NewCitationStore(pool),
			decisions: store.NewMergeDecisionStore(pool),
			committer: store.NewBatchStore(pool),
			writer:    store.NewAdvisoryLock(pool),
		}

		side, err := openSideStore(ctx, eng, opts.RedisURL, logger)
		if err != nil {
			eng.Close()
			return nil, err
		}
		st.side = side
	}

	authority := citation.DefaultAuthorityTable()
	if opts.AuthorityPath != "" {
		t, err := citation.LoadAuthorityTable(opts.AuthorityPath)
		if err != nil {
			logger.Warn("citation authority config unreadable, using defaults",
				zap.String("path", opts.AuthorityPath), zap.Error(err))
		} else {
			authority = t
		}
	}

	var personas []domain.Persona
	if opts.PersonasPath != "" {
		p, err := service.LoadPersonas(opts.PersonasPath)
		if err != nil {
			logger.Warn("personas config unreadable, using defaults",
				zap.String("path", opts.PersonasPath), zap.Error(err))
		} else {
			personas = p
		}
	}

	// one writer lock for every service that mutates the graph
	eng.Belief = service.NewBeliefService(st.entities, st.side, authority, st.writer, logger.Named("belief"))
	eng.Resolver = service.NewResolverService(st.entities, st.citations, st.decisions, st.committer, st.side, eng.Belief, st.writer, logger.Named("resolver"))
	eng.Suggestions = service.NewSuggestionService(st.entities, st.citations, st.decisions, st.committer, st.side, eng.Belief, st.writer, logger.Named("suggestions"))
	eng.Conflicts = service.NewConflictService(st.entities, st.side, st.writer, logger.Named("conflicts"))
	eng.Profile = service.NewProfileService(st.entities, st.decisions, st.side, personas, st.writer, logger.Named("profile"))

	if opts.BatchSize > 0 {
		eng.Resolver.BatchSize = opts.BatchSize
	}
	if opts.SuggestionDailyLimit > 0 {
		eng.Suggestions.DailyLimit = opts.SuggestionDailyLimit
	}
	if opts.VisibilityThreshold > 0 {
		eng.Profile.Threshold = opts.VisibilityThreshold
	}

	return eng, nil
}

func openSideStore(ctx context.Context, eng *Engine, redisURL string, logger *zap.Logger) (domain.SideStore, error) {
	if redisURL == "" {
		logger.Warn("REDIS_URL not set, side store is in process memory")
		return memstore.NewSideStore(), nil
	}
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	eng.closers = append(eng.closers, func() { _ = rdb.Close() })

	side := sidestore.New(rdb, sidestore.DefaultPrefix, logger.Named("sidestore"))
	if err := side.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	eng.Health["redis"] = side
	logger.Info("connected to redis")
	return side, nil
}

// Close releases connections in reverse order of opening.
func (e *Engine) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
}

// NewLogger builds a production JSON logger at the given level.
func NewLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}
	cfg.Level = lvl
	return cfg.Build()
}
