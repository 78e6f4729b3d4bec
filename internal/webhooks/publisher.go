package webhooks

import (
	"context"
	"encoding/json"
	"time"

	"cvrpsolver/internal/model"
	"cvrpsolver/internal/store"
)

type Publisher struct {
	Store store.Store
}

func NewPublisher(s store.Store) *Publisher {
	return &Publisher{Store: s}
}

// Payload is the body POSTed to callback URLs.
type Payload struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	TenantID string    `json:"tenantId"`
	TS       string    `json:"ts"`
	Data     model.Run `json:"data"`
}

// RunFinished enqueues a delivery of the terminal run to its callback, if it has one.
// It returns the delivery id, or "" when nothing was enqueued.
func (p *Publisher) RunFinished(ctx context.Context, run model.Run) (string, error) {
	if run.Callback == nil || run.Callback.URL == "" || !run.Terminal() {
		return "", nil
	}
	eventType := model.EventRunCompleted
	if run.Status == model.RunFailed {
		eventType = model.EventRunFailed
	}
	body, err := json.Marshal(Payload{
		ID:       "evt_" + run.ID,
		Type:     eventType,
		TenantID: run.TenantID,
		TS:       time.Now().UTC().Format(time.RFC3339),
		Data:     run,
	})
	if err != nil {
		return "", err
	}
	return p.Store.EnqueueWebhook(ctx, run.TenantID, run.ID, eventType, run.Callback.URL, run.Callback.Secret, body)
}
