package api

import (
	"net/http"
	"time"

	"cvrpsolver/internal/buildinfo"
)

func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"config": map[string]any{
			"addr":               s.Cfg.Server.Addr,
			"poolSize":           s.Cfg.Workers.PoolSize,
			"maxQueued":          s.Cfg.Workers.MaxQueued,
			"webhookMaxAttempts": s.Cfg.Webhooks.MaxAttempts,
			"eventsPerSecond":    s.Cfg.Broker.EventsPerSecond,
			"hasDatabaseURL":     s.Cfg.Store.DatabaseURL != "",
			"hasRedisURL":        s.Cfg.Broker.RedisURL != "",
		},
		"pool": map[string]int{
			"running": s.Pool.Running(),
			"free":    s.Pool.Free(),
			"waiting": s.Pool.Waiting(),
			"cap":     s.Pool.Cap(),
		},
	})
}
