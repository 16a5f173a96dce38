// internal/cache/publisher.go
package cache

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/nightstake/internal/game"
	"github.com/jason-s-yu/nightstake/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// EventPublisher is a game.Broadcaster that queues public match events for the historian.
// Broadcast never blocks: when the buffer is full the event is dropped and counted.
type EventPublisher struct {
	rdb     *redis.Client
	queue   string
	ch      chan models.MatchEventRecord
	seq     atomic.Int64
	dropped atomic.Int64
	logger  logrus.FieldLogger
}

var _ game.Broadcaster = (*EventPublisher)(nil)

func NewEventPublisher(rdb *redis.Client, queue string, buffer int, logger logrus.FieldLogger) *EventPublisher {
	if queue == "" {
		queue = DefaultQueueName
	}
	if buffer <= 0 {
		buffer = 1024
	}
	return &EventPublisher{
		rdb:    rdb,
		queue:  queue,
		ch:     make(chan models.MatchEventRecord, buffer),
		logger: logger.WithField("component", "publisher"),
	}
}

// Broadcast records every public event except countdown ticks.
func (p *EventPublisher) Broadcast(matchID uuid.UUID, ev game.Event) {
	if ev.Type == game.EventTimerTick {
		return
	}
	rec := p.record(matchID, ev)
	select {
	case p.ch <- rec:
	default:
		if n := p.dropped.Add(1); n%100 == 1 {
			p.logger.WithField("match", matchID).Warnf("event queue full, %d events dropped so far", n)
		}
	}
}

// SendTo is a no-op: private events never leave the process.
func (p *EventPublisher) SendTo(uuid.UUID, string, game.Event) {}

func (p *EventPublisher) record(matchID uuid.UUID, ev game.Event) models.MatchEventRecord {
	payload, err := json.Marshal(ev.Payload)
	if err != nil || ev.Payload == nil {
		payload = []byte("{}")
	}
	return models.MatchEventRecord{
		MatchID:   matchID,
		Seq:       p.seq.Add(1),
		EventType: string(ev.Type),
		Phase:     ev.Phase.String(),
		Actor:     ev.Participant,
		Payload:   payload,
		Timestamp: ev.At.UnixMilli(),
	}
}

// Run drains the buffer into Redis until ctx is done, then flushes what is left.
func (p *EventPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			p.drain()
			return nil
		case rec := <-p.ch:
			p.push(ctx, rec)
		}
	}
}

func (p *EventPublisher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		select {
		case rec := <-p.ch:
			p.push(ctx, rec)
		default:
			return
		}
	}
}

func (p *EventPublisher) push(ctx context.Context, rec models.MatchEventRecord) {
	if err := PublishMatchEvent(ctx, p.rdb, p.queue, rec); err != nil {
		p.logger.WithFields(logrus.Fields{"match": rec.MatchID, "type": rec.EventType}).Warn(err)
	}
}

// Dropped returns the number of events lost to a full buffer.
func (p *EventPublisher) Dropped() int64 { return p.dropped.Load() }
