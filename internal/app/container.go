// internal/app/container.go
package app

import (
	"fmt"

	"dgit/internal/api"
	"dgit/internal/blob"
	blobStorage "dgit/internal/blob/storage"
	"dgit/internal/branch"
	branchStorage "dgit/internal/branch/storage"
	"dgit/internal/commit"
	commitStorage "dgit/internal/commit/storage"
	"dgit/internal/config"
	"dgit/internal/decision"
	"dgit/internal/decision/engine"
	"dgit/internal/diff"
	"dgit/internal/logging"
	"dgit/internal/mergerequest"
	mrStorage "dgit/internal/mergerequest/storage"
	"dgit/internal/repository"
	repoStorage "dgit/internal/repository/storage"
	"dgit/internal/safe"
	"dgit/internal/tree"
	treeStorage "dgit/internal/tree/storage"
	"dgit/internal/vcs"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/dig"
	"go.uber.org/zap"
)

// App is everything a binary needs once the container is resolved.
type App struct {
	dig.In

	DB            *badger.DB
	Logger        *logging.Logger
	Repositories  repository.Box
	Blobs         blob.Box
	Trees         tree.Box
	Commits       commit.Box
	Branches      branch.Box
	MergeRequests mergerequest.Box
	Diffs         *diff.Engine
	Resolver      *decision.Resolver
	VCS           *vcs.Service
	API           *api.Handler
}

// Close releases the database.
func (a *App) Close() error {
	return a.DB.Close()
}

// Build resolves the application graph for cfg.
func Build(cfg *config.Config, logger *logging.Logger) (*App, error) {
	container := dig.New()
	if err := RegisterProviders(container, cfg, logger); err != nil {
		return nil, fmt.Errorf("registering providers: %w", err)
	}

	var app App
	if err := container.Invoke(func(a App) { app = a }); err != nil {
		return nil, fmt.Errorf("building application: %w", err)
	}
	return &app, nil
}

// RegisterProviders registers storage, services and handlers, bottom-up.
func RegisterProviders(container *dig.Container, cfg *config.Config, logger *logging.Logger) error {
	providers := []any{
		func() *config.Config { return cfg },
		func() *logging.Logger { return logger },
		OpenDB,
		func(cfg *config.Config) (*safe.Codec, error) { return safe.NewCodec(cfg.Compression) },
		func(cfg *config.Config) (*safe.Cache[*blob.Blob], error) {
			return safe.NewCache[*blob.Blob](cfg.Cache.BlobEntries)
		},

		// Stores
		branchStorage.NewStore,
		blobStorage.NewStore,
		treeStorage.NewStore,
		func(db *badger.DB, branches *branchStorage.Store) *commitStorage.Store {
			return commitStorage.NewStore(db, branches)
		},
		func(db *badger.DB, branches *branchStorage.Store) *mrStorage.Store {
			return mrStorage.NewStore(db, branches)
		},
		func(
			db *badger.DB,
			branches *branchStorage.Store,
			mrs *mrStorage.Store,
			commits *commitStorage.Store,
			trees *treeStorage.Store,
			blobs *blobStorage.Store,
		) *repoStorage.Store {
			return repoStorage.NewStore(db, branches, branches, mrs, commits, trees, blobs)
		},

		// Boxes
		func(s *repoStorage.Store) repository.Box { return s },
		func(s *blobStorage.Store) blob.Box { return s },
		func(s *blobStorage.Store) vcs.Forgetter { return s },
		func(s *treeStorage.Store) tree.Box { return s },
		func(s *commitStorage.Store) commit.Box { return s },
		func(s *branchStorage.Store) branch.Box { return s },
		func(s *mrStorage.Store) mergerequest.Box { return s },

		// Services
		func(trees tree.Box, blobs blob.Box, commits commit.Box, branches branch.Box, cfg *config.Config) *diff.Engine {
			return diff.NewEngine(trees, blobs, commits, branches, cfg.Diff.ContextLines)
		},
		func(cfg *config.Config) decision.Evaluator { return engine.New(cfg.Decision.MaxDepth) },
		func(blobs blob.Box, trees tree.Box, commits commit.Box, branches branch.Box, ev decision.Evaluator, logger *logging.Logger, cfg *config.Config) *decision.Resolver {
			return decision.NewResolver(blobs, trees, commits, branches, ev, logger, cfg.Decision.Trace)
		},
		vcs.New,
		api.NewHandler,
	}

	for _, p := range providers {
		if err := container.Provide(p); err != nil {
			return err
		}
	}
	return nil
}

// OpenDB opens the badger database described by cfg, logging through zap.
func OpenDB(cfg *config.Config, logger *logging.Logger) (*badger.DB, error) {
	opts := badger.DefaultOptions(cfg.Database.Path)
	if cfg.Database.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = badgerLogger{logger.Sugar().With(zap.String("component", "badger"))}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

// badgerLogger adapts zap to badger's logger interface.
type badgerLogger struct {
	*zap.SugaredLogger
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.Warnf(format, args...)
}
