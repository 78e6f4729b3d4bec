package api

import (
	"golang.org/x/time/rate"

	"cvrpsolver/internal/model"
	"cvrpsolver/internal/opt"
)

// progressObserver publishes solver events of one run to the broker. Progress
// is rate limited; the initial and terminal snapshots always go out.
type progressObserver struct {
	runID   string
	broker  EventBroker
	limiter *rate.Limiter
	dropped int
}

func newProgressObserver(runID string, b EventBroker, perSecond float64, burst int) *progressObserver {
	return &progressObserver{runID: runID, broker: b, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (o *progressObserver) OnEvent(e opt.Event) {
	always := e.Kind == opt.EventInit || e.Kind == opt.EventTerminated
	if !always && !o.limiter.Allow() {
		o.dropped++
		return
	}
	o.broker.Publish(o.runID, model.RunEvent{Type: model.EventRunProgress, Data: map[string]any{
		"runId":     o.runID,
		"kind":      e.Kind,
		"state":     e.State,
		"iteration": e.Iteration,
		"k":         e.K,
		"operator":  e.Operator,
		"cost":      e.Cost,
		"vehicles":  e.Vehicles,
		"routes":    e.Routes,
	}})
}
