// internal/historian/historian.go pops match events from a Redis queue and persists them to
// PostgreSQL in batches.
package historian

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/nightstake/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Queue is the part of the Redis client the historian reads from.
type Queue interface {
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
}

// Sink persists event batches and flags silent matches.
type Sink interface {
	InsertMatchEvents(ctx context.Context, recs []models.MatchEventRecord) error
	MarkAbandoned(ctx context.Context, matchID uuid.UUID) (bool, error)
}

// Config tunes batching and the inactivity threshold.
type Config struct {
	QueueName  string
	BatchSize  int
	FlushDelay time.Duration
	// Inactivity is how long a running match may stay silent before it is marked abandoned.
	Inactivity time.Duration
	// PopTimeout bounds each BLPop so cancellation is noticed.
	PopTimeout time.Duration
}

// Service captures match events and marks matches abandoned when they go quiet.
type Service struct {
	queue  Queue
	sink   Sink
	cfg    Config
	logger logrus.FieldLogger

	lastActivity sync.Map // map[uuid.UUID]time.Time

	batchMu sync.Mutex
	batch   []models.MatchEventRecord
}

func NewService(queue Queue, sink Sink, cfg Config, logger logrus.FieldLogger) *Service {
	if cfg.QueueName == "" {
		cfg.QueueName = "nightstake_events"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.FlushDelay <= 0 {
		cfg.FlushDelay = 500 * time.Millisecond
	}
	if cfg.Inactivity <= 0 {
		cfg.Inactivity = 10 * time.Minute
	}
	if cfg.PopTimeout <= 0 {
		cfg.PopTimeout = 3 * time.Second
	}
	return &Service{
		queue:  queue,
		sink:   sink,
		cfg:    cfg,
		logger: logger.WithField("component", "historian"),
		batch:  make([]models.MatchEventRecord, 0, cfg.BatchSize),
	}
}

// Run starts the two main loops and blocks until ctx is done:
//  1. reading from the Redis queue into a batch that is flushed to the DB.
//  2. a periodic check that marks inactive matches abandoned.
func (hs *Service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hs.readLoop(ctx) })
	g.Go(func() error { return hs.flushLoop(ctx) })
	g.Go(func() error { return hs.inactivityLoop(ctx) })
	hs.logger.Info("historian started")
	err := g.Wait()
	hs.flush(context.Background())
	hs.logger.Info("historian stopped")
	return err
}

func (hs *Service) readLoop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		res, err := hs.queue.BLPop(ctx, hs.cfg.PopTimeout, hs.cfg.QueueName).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			hs.logger.Errorf("BLPop: %v", err)
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}
		// res[0] is the queue name and res[1] the payload.
		if len(res) < 2 {
			continue
		}
		hs.handle(ctx, []byte(res[1]))
	}
}

// handle decodes one queued payload and appends it to the batch.
func (hs *Service) handle(ctx context.Context, payload []byte) {
	var rec models.MatchEventRecord
	if err := json.Unmarshal(payload, &rec); err != nil || rec.MatchID == uuid.Nil {
		hs.logger.Warnf("invalid event record: %v", err)
		return
	}

	switch rec.EventType {
	case "match_ended", "match_cancelled":
		hs.lastActivity.Delete(rec.MatchID)
	default:
		hs.lastActivity.Store(rec.MatchID, time.Now())
	}

	hs.batchMu.Lock()
	hs.batch = append(hs.batch, rec)
	full := len(hs.batch) >= hs.cfg.BatchSize
	hs.batchMu.Unlock()
	if full {
		hs.flush(ctx)
	}
}

func (hs *Service) flushLoop(ctx context.Context) error {
	ticker := time.NewTicker(hs.cfg.FlushDelay)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			hs.flush(ctx)
		}
	}
}

// flush writes the current batch in one transaction. A failed batch is put back in front so
// the next flush retries it.
func (hs *Service) flush(ctx context.Context) {
	hs.batchMu.Lock()
	defer hs.batchMu.Unlock()
	if len(hs.batch) == 0 {
		return
	}
	batch := make([]models.MatchEventRecord, len(hs.batch))
	copy(batch, hs.batch)

	if err := hs.sink.InsertMatchEvents(ctx, batch); err != nil {
		hs.logger.Errorf("flush %d events: %v", len(batch), err)
		return
	}
	hs.batch = hs.batch[:0]
	hs.logger.Debugf("flushed %d events", len(batch))
}

func (hs *Service) inactivityLoop(ctx context.Context) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			hs.sweepInactive(ctx, time.Now())
		}
	}
}

// sweepInactive marks every match silent for longer than the threshold as abandoned.
func (hs *Service) sweepInactive(ctx context.Context, now time.Time) int {
	marked := 0
	hs.lastActivity.Range(func(key, val any) bool {
		matchID, ok1 := key.(uuid.UUID)
		last, ok2 := val.(time.Time)
		if !ok1 || !ok2 || now.Sub(last) <= hs.cfg.Inactivity {
			return true
		}
		changed, err := hs.sink.MarkAbandoned(ctx, matchID)
		if err != nil {
			hs.logger.WithField("match", matchID).Errorf("mark abandoned: %v", err)
			return true
		}
		hs.lastActivity.Delete(matchID)
		if changed {
			marked++
			hs.logger.WithField("match", matchID).Info("marked abandoned due to inactivity")
		}
		return true
	})
	return marked
}
