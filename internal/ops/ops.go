// Package ops publishes cross-cell operational telemetry over Redis pub/sub
// — events a single cell process can observe but that only make sense
// aggregated across the whole cell cluster, starting with AOI packet-budget
// overruns (spec §7's warn-and-send path).
package ops

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const overrunChannel = "witness:budget-overrun"

// OverrunEvent mirrors event.AOIBudgetOverrun for the wire.
type OverrunEvent struct {
	CellID      string `json:"cell_id"`
	EntityID    uint32 `json:"entity_id"`
	OverrunSize int    `json:"overrun_size"`
	Tick        uint64 `json:"tick"`
}

// Publisher pushes OverrunEvents onto a shared Redis channel for whatever
// fleet-wide dashboard or alerting consumer is subscribed.
type Publisher struct {
	client *redis.Client
	cellID string
	log    *zap.Logger
}

func NewPublisher(client *redis.Client, cellID string, log *zap.Logger) *Publisher {
	return &Publisher{client: client, cellID: cellID, log: log}
}

// PublishOverrun implements witness.OverrunReporter, using a background
// context so a witness's tick loop is never made to wait on Redis — fire-
// and-forget telemetry, never a latency dependency of replication itself.
func (p *Publisher) PublishOverrun(entityID uint32, overrunSize int, tick uint64) {
	go p.publish(context.Background(), entityID, overrunSize, tick)
}

func (p *Publisher) publish(ctx context.Context, entityID uint32, overrunSize int, tick uint64) {
	ev := OverrunEvent{CellID: p.cellID, EntityID: entityID, OverrunSize: overrunSize, Tick: tick}
	payload, err := json.Marshal(ev)
	if err != nil {
		p.log.Error("marshal overrun event", zap.Error(err))
		return
	}
	if err := p.client.Publish(ctx, overrunChannel, payload).Err(); err != nil {
		p.log.Warn("publish overrun event", zap.Error(err))
	}
}

// Subscriber drains OverrunEvents for a monitoring process. No cell process
// in this module calls it — it's the read side of overrunChannel, meant for
// a separate fleet-wide dashboard/alerting binary outside this repo's scope,
// exported so that binary has something to import.
type Subscriber struct {
	sub *redis.PubSub
}

func NewSubscriber(ctx context.Context, client *redis.Client) *Subscriber {
	return &Subscriber{sub: client.Subscribe(ctx, overrunChannel)}
}

func (s *Subscriber) Close() error { return s.sub.Close() }

// Next blocks for the next event on the channel.
func (s *Subscriber) Next(ctx context.Context) (OverrunEvent, error) {
	msg, err := s.sub.ReceiveMessage(ctx)
	if err != nil {
		return OverrunEvent{}, fmt.Errorf("receive overrun event: %w", err)
	}
	var ev OverrunEvent
	if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
		return OverrunEvent{}, fmt.Errorf("decode overrun event: %w", err)
	}
	return ev, nil
}
