package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"k8s.io/klog/v2"

	"cvrpsolver/internal/auth"
	"cvrpsolver/internal/config"
	"cvrpsolver/internal/store"
	"cvrpsolver/internal/webhooks"
)

type Server struct {
	Store    store.Store
	Pub      *webhooks.Publisher
	Broker   EventBroker
	Pool     *ants.Pool
	Cfg      config.Config
	Verifier *auth.Verifier // nil in header auth mode

	mu      sync.Mutex
	cancels map[string]context.CancelFunc // runId -> cancel of a submitted job
}

// NewServer wires the store, broker and worker pool described by cfg. Without a
// database URL the in-memory store is used; without a Redis URL the in-process broker.
func NewServer(cfg config.Config) (*Server, error) {
	var s store.Store
	if cfg.Store.DatabaseURL == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if cfg.Store.Migrate {
			if err := sp.MigrateDir(cfg.Store.MigrationsDir); err != nil {
				return nil, err
			}
		}
		s = sp
	}
	var broker EventBroker = NewBroker()
	if cfg.Broker.RedisURL != "" {
		rb, err := NewRedisBroker(cfg.Broker.RedisURL)
		if err != nil {
			klog.ErrorS(err, "redis broker unavailable, using in-process broker")
		} else {
			broker = rb
		}
	}
	pool, err := ants.NewPool(cfg.Workers.PoolSize, ants.WithPanicHandler(func(p any) {
		klog.ErrorS(nil, "solver job panicked", "panic", p)
	}))
	if err != nil {
		return nil, err
	}
	return &Server{
		Store:    s,
		Pub:      webhooks.NewPublisher(s),
		Broker:   broker,
		Pool:     pool,
		Cfg:      cfg,
		Verifier: auth.NewVerifier(cfg.Auth),
		cancels:  map[string]context.CancelFunc{},
	}, nil
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	w := webhooks.NewWorker(s.Store, s.Cfg.Webhooks.MaxAttempts)
	if s.Cfg.Webhooks.PollInterval > 0 {
		w.Interval = s.Cfg.Webhooks.PollInterval
	}
	return w
}

// Close cancels running jobs, waits up to timeout for the pool to drain and
// closes the broker.
func (s *Server) Close(timeout time.Duration) error {
	s.mu.Lock()
	for _, cancel := range s.cancels {
		cancel()
	}
	s.mu.Unlock()
	return errors.Join(s.Pool.ReleaseTimeout(timeout), s.Broker.Close())
}
