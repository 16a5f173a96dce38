package cache

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/nightstake/internal/game"
	"github.com/jason-s-yu/nightstake/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quiet() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestPublisherBuffersPublicEvents(t *testing.T) {
	p := NewEventPublisher(nil, "", 4, quiet())
	id := uuid.New()
	at := time.UnixMilli(1_700_000_000_000)

	left := 3
	p.Broadcast(id, game.Event{Type: game.EventTimerTick, TimeLeft: &left, At: at})
	p.Broadcast(id, game.Event{Type: game.EventVoteCast, Phase: game.PhaseVoting, Participant: "0xa", Payload: map[string]any{"votesCast": 1}, At: at})
	p.SendTo(id, "0xa", game.Event{Type: game.EventSyncState})
	require.Len(t, p.ch, 1, "ticks and private events are not recorded")

	rec := <-p.ch
	assert.Equal(t, id, rec.MatchID)
	assert.Equal(t, int64(1), rec.Seq)
	assert.Equal(t, "vote_cast", rec.EventType)
	assert.Equal(t, "voting", rec.Phase)
	assert.Equal(t, "0xa", rec.Actor)
	assert.Equal(t, at.UnixMilli(), rec.Timestamp)
	assert.JSONEq(t, `{"votesCast":1}`, string(rec.Payload))
}

func TestPublisherDropsWhenFull(t *testing.T) {
	p := NewEventPublisher(nil, "q", 2, quiet())
	id := uuid.New()
	for range 5 {
		p.Broadcast(id, game.Event{Type: game.EventPhaseChanged})
	}
	assert.Len(t, p.ch, 2)
	assert.Equal(t, int64(3), p.Dropped())
}

func TestPublisherPushesToRedis(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rdb, err := ConnectRedis(ctx, addr, 0)
	require.NoError(t, err)
	defer rdb.Close()

	queue := "nightstake_test_" + uuid.NewString()
	p := NewEventPublisher(rdb, queue, 8, quiet())
	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- p.Run(runCtx) }()

	id := uuid.New()
	p.Broadcast(id, game.Event{Type: game.EventMatchEnded, Phase: game.PhaseEnded, At: time.Now()})

	res, err := rdb.BLPop(ctx, 3*time.Second, queue).Result()
	require.NoError(t, err)
	var rec models.MatchEventRecord
	require.NoError(t, json.Unmarshal([]byte(res[1]), &rec))
	assert.Equal(t, id, rec.MatchID)
	assert.Equal(t, "match_ended", rec.EventType)

	stop()
	require.NoError(t, <-done)
}
