package cli

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/hupe1980/reviewmesh"
	"github.com/hupe1980/reviewmesh/codereview"
	"github.com/hupe1980/reviewmesh/config"
	"github.com/hupe1980/reviewmesh/core"
	"github.com/hupe1980/reviewmesh/gitctx"
	"github.com/hupe1980/reviewmesh/logging"
	"github.com/hupe1980/reviewmesh/model/factory"
	"github.com/hupe1980/reviewmesh/notify"
	"github.com/hupe1980/reviewmesh/store/memory"
	"github.com/hupe1980/reviewmesh/store/sqlite"
)

// services is everything a command needs, built from the configuration.
type services struct {
	cfg       config.Config
	logger    logging.Logger
	assistant *reviewmesh.Assistant
	reviews   *codereview.Dir
	notifier  notify.Notifier
	sqlite    *sqlite.Store
	closers   []func() error
}

func (s *services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i]()
	}
}

func (a *app) loadConfig() (config.Config, error) {
	if err := config.LoadDotEnv(a.envPath); err != nil {
		return config.Config{}, core.NewConfigError("load %s: %v", a.envPath, err)
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func (a *app) newLogger() (logging.Logger, func() error, error) {
	if a.logger != nil {
		return a.logger, func() error { return nil }, nil
	}
	zl, err := logging.NewZapProduction(a.verbose)
	if err != nil {
		return nil, nil, err
	}
	return logging.NewZapAdapter(zl), zl.Sync, nil
}

func (a *app) build(ctx context.Context) (*services, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	logger, sync, err := a.newLogger()
	if err != nil {
		return nil, err
	}
	s := &services{cfg: cfg, logger: logger, closers: []func() error{sync}}

	store, err := s.openStore(ctx)
	if err != nil {
		s.Close()
		return nil, err
	}

	reg, err := cfg.Registry()
	if err != nil {
		s.Close()
		return nil, err
	}
	timeout, _ := cfg.RequestTimeout()

	s.reviews = codereview.New(cfg.Review.Dir, func(o *codereview.Options) { o.Logger = logger })
	s.notifier = notify.Nop{}
	if cfg.Discord.WebhookURL != "" {
		ids, _ := cfg.Discord.AuthorIDs()
		s.notifier = notify.NewDiscord(cfg.Discord.WebhookURL, func(o *notify.DiscordOptions) {
			o.AuthorIDs = ids
			o.Logger = logger
		})
	}

	s.assistant, err = reviewmesh.New(reg, func(o *reviewmesh.Options) {
		o.Store = store
		o.Commits = gitctx.New(cfg.Review.Repository, func(o *gitctx.Options) { o.ContextLines = cfg.Review.ContextLines })
		o.Reviews = s.reviews
		o.Templates = s.reviews
		o.Analysis = cfg.Analysis
		o.ReviewModel = cfg.Review.Model
		o.Clients = factory.NewPool(func(o *factory.Options) { o.Timeout = timeout })
		o.MaxParallelTools = cfg.Tools.MaxParallel
		o.TicketCap = cfg.Tools.TicketCap
		o.Logger = logger
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *services) openStore(ctx context.Context) (core.DataStore, error) {
	switch s.cfg.Storage.Driver {
	case config.StorageSQLite:
		db, err := sqlite.Open(ctx, s.cfg.Storage.Path)
		if err != nil {
			return nil, err
		}
		s.sqlite = db
		s.closers = append(s.closers, db.Close)
		return db, nil
	default:
		mem := memory.New()
		if s.cfg.Storage.Seed != "" {
			if _, err := os.Stat(s.cfg.Storage.Seed); errors.Is(err, fs.ErrNotExist) {
				return nil, core.NewConfigError("storage: seed file %s not found", s.cfg.Storage.Seed)
			}
			if _, err := importSeed(ctx, mem, s.cfg.Storage.Seed); err != nil {
				return nil, err
			}
		}
		return mem, nil
	}
}

// seedTarget is a store that accepts imported tickets and documents.
type seedTarget interface {
	SaveTicket(ctx context.Context, t core.Ticket) error
	SaveDocument(ctx context.Context, d core.Document) error
}

func importSeed(ctx context.Context, dst seedTarget, path string) (int, error) {
	seed, err := config.LoadSeed(path)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, t := range seed.Tickets {
		if err := dst.SaveTicket(ctx, t); err != nil {
			return n, err
		}
		n++
	}
	for _, d := range seed.Documents {
		if err := dst.SaveDocument(ctx, d); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
