// internal/game/manager.go
package game

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	mrand "math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/nightstake/internal/models"
	"github.com/sirupsen/logrus"
)

// Manager is the single authority over live matches. Every mutation runs under the match
// lock and completes without blocking; broadcasts are handed to non-blocking sinks while the
// lock is held, and persistence and settlement run afterwards on their own goroutines.
type Manager struct {
	cfg    Config
	store  *MatchStore
	timers *TimerManager

	broadcaster Broadcaster
	settlement  Settlement
	persistence Persistence
	metrics     Metrics
	logger      logrus.FieldLogger

	now func() time.Time

	rngMu sync.Mutex
	rng   *mrand.Rand

	// bg tracks persistence and settlement goroutines.
	bg sync.WaitGroup

	startsMu sync.Mutex
	starts   map[uuid.UUID]*time.Timer
}

// Option customizes a Manager.
type Option func(*Manager)

func WithBroadcaster(b Broadcaster) Option { return func(mg *Manager) { mg.broadcaster = b } }
func WithSettlement(s Settlement) Option   { return func(mg *Manager) { mg.settlement = s } }
func WithPersistence(p Persistence) Option { return func(mg *Manager) { mg.persistence = p } }
func WithMetrics(m Metrics) Option         { return func(mg *Manager) { mg.metrics = m } }
func WithLogger(l logrus.FieldLogger) Option {
	return func(mg *Manager) { mg.logger = l }
}

// WithClock replaces the wall clock used for timestamps and monitor ceilings.
func WithClock(now func() time.Time) Option { return func(mg *Manager) { mg.now = now } }

// WithRand fixes the randomness used for roles and tasks.
func WithRand(r *mrand.Rand) Option { return func(mg *Manager) { mg.rng = r } }

// NewManager builds an orchestrator. Collaborators left unset are skipped: no settlement
// means matches run off-chain, no persistence means lobby listing uses memory.
func NewManager(cfg Config, opts ...Option) *Manager {
	mg := &Manager{
		cfg:         cfg.withDefaults(),
		store:       NewMatchStore(),
		broadcaster: noopBroadcaster{},
		metrics:     noopMetrics{},
		logger:      logrus.StandardLogger(),
		now:         time.Now,
		starts:      make(map[uuid.UUID]*time.Timer),
	}
	for _, opt := range opts {
		opt(mg)
	}
	if mg.rng == nil {
		var seed [16]byte
		_, _ = crand.Read(seed[:])
		mg.rng = mrand.New(mrand.NewPCG(binary.LittleEndian.Uint64(seed[:8]), binary.LittleEndian.Uint64(seed[8:])))
	}
	mg.timers = NewTimerManager(mg.cfg.TickInterval, mg.cfg.ReadyGrace, mg.onTimerTick, mg.onReadyGrace)
	return mg
}

// Close stops every clock and waits for in-flight side effects.
func (mg *Manager) Close() {
	mg.startsMu.Lock()
	for id, t := range mg.starts {
		t.Stop()
		delete(mg.starts, id)
	}
	mg.startsMu.Unlock()
	mg.timers.StopAll()
	mg.bg.Wait()
}

// Config returns the effective configuration.
func (mg *Manager) Config() Config { return mg.cfg }

// effects collects what a mutation must publish once its state is consistent.
type effects struct {
	events    []Event
	private   []privateEvent
	noSync    bool
	persist   bool
	cancelled bool
	evict     bool

	scheduleStart bool
	chainStatus   string
	settle        *settleJob
}

type privateEvent struct {
	participant string
	ev          Event
}

type settleJob struct {
	chainMatchID string
	payouts      []Payout
}

func (mg *Manager) emit(m *Match, fx *effects, typ EventType, participant string, payload map[string]any) {
	fx.events = append(fx.events, Event{
		Type:        typ,
		MatchID:     m.ID,
		Phase:       m.Phase,
		Participant: participant,
		Payload:     payload,
		At:          mg.now(),
	})
	fx.persist = true
}

func (mg *Manager) emitTo(m *Match, fx *effects, participant string, typ EventType, payload map[string]any) {
	fx.private = append(fx.private, privateEvent{participant: participant, ev: Event{
		Type:        typ,
		MatchID:     m.ID,
		Phase:       m.Phase,
		Participant: participant,
		Payload:     payload,
		At:          mg.now(),
	}})
}

// withMatch serializes fn against every other operation on the match. fn must validate
// before mutating: a returned error means nothing changed and nothing is published.
func (mg *Manager) withMatch(id uuid.UUID, fn func(m *Match, fx *effects) error) error {
	m, ok := mg.store.get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	after, err := func() (func(), error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		if cur, live := mg.store.get(id); !live || cur != m {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		fx := &effects{}
		if err := fn(m, fx); err != nil {
			return nil, err
		}
		return mg.publishLocked(m, fx), nil
	}()
	if err != nil {
		return err
	}
	after()
	return nil
}

// publishLocked hands events to the broadcaster in order and returns the slow follow-ups.
func (mg *Manager) publishLocked(m *Match, fx *effects) func() {
	var view *PublicView
	for _, ev := range fx.events {
		if ev.Type != EventTimerTick && ev.State == nil {
			if view == nil {
				v := mg.publicView(m)
				view = &v
			}
			ev.State = view
		}
		mg.broadcaster.Broadcast(m.ID, ev)
	}
	for _, pe := range fx.private {
		mg.broadcaster.SendTo(m.ID, pe.participant, pe.ev)
	}
	if len(fx.events) > 0 && !fx.noSync && !fx.evict {
		at := mg.now()
		for _, p := range m.Participants {
			mg.broadcaster.SendTo(m.ID, p, Event{
				Type:        EventSyncState,
				MatchID:     m.ID,
				Phase:       m.Phase,
				Participant: p,
				State:       mg.participantView(m, p),
				At:          at,
			})
		}
	}

	var rec *models.MatchRecord
	if fx.persist && mg.persistence != nil {
		m.version++
		r := mg.record(m, fx.cancelled)
		rec = &r
	}
	if fx.evict {
		mg.timers.Stop(m.ID)
		mg.store.remove(m.ID)
		mg.metrics.ActiveMatches(mg.store.count())
	}

	id := m.ID
	settle := fx.settle
	chainStatus := fx.chainStatus
	scheduleStart := fx.scheduleStart
	return func() {
		if rec != nil {
			mg.savePersisted(*rec)
		}
		if chainStatus != "" {
			mg.reconcileChain(id, chainStatus)
		}
		if settle != nil {
			mg.submitSettlement(id, *settle)
		}
		if scheduleStart {
			mg.scheduleStart(id)
		}
	}
}

func (mg *Manager) log(m *Match) logrus.FieldLogger {
	return mg.logger.WithFields(logrus.Fields{"match": m.ID, "phase": m.Phase})
}

func (mg *Manager) record(m *Match, cancelled bool) models.MatchRecord {
	settings, _ := json.Marshal(m.Settings)
	rec := models.MatchRecord{
		ID:           m.ID,
		JoinCode:     m.JoinCode,
		Creator:      m.Creator,
		Status:       m.Phase.String(),
		Public:       m.Public,
		Participants: append([]string{}, m.Participants...),
		Day:          m.Day,
		Eliminated:   append([]string{}, m.Eliminated...),
		StakeAmount:  m.Stake.Amount,
		MinPlayers:   m.Stake.MinParticipants,
		MaxPlayers:   m.Stake.MaxParticipants,
		ChainMatchID: m.Stake.ChainMatchID,
		Settings:     settings,
		RoleCommit:   m.RoleCommit,
		Winners:      append([]string{}, m.Winners...),
		WinReason:    string(m.WinReason),
		SettlementTx: m.SettlementTx,
		CreatedAt:    m.CreatedAt,
		Version:      m.version,
	}
	if cancelled {
		rec.Status = "cancelled"
	}
	if !m.StartedAt.IsZero() {
		t := m.StartedAt
		rec.StartedAt = &t
	}
	if m.Phase == PhaseEnded {
		t := m.EndedAt
		rec.EndedAt = &t
		rec.RoleSalt = m.roleSalt
	}
	return rec
}

// savePersisted mirrors rec without holding any match lock. Writes may land out of order;
// the store keeps the highest Version. Failures are logged only.
func (mg *Manager) savePersisted(rec models.MatchRecord) {
	mg.bg.Add(1)
	go func() {
		defer mg.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), mg.cfg.PersistTimeout)
		defer cancel()
		if err := mg.persistence.SaveMatch(ctx, rec); err != nil {
			mg.logger.WithField("match", rec.ID).Warnf("persist match: %v", err)
		}
	}()
}

// reconcileChain logs the on-chain status seen at start.
func (mg *Manager) reconcileChain(id uuid.UUID, chainMatchID string) {
	if mg.settlement == nil {
		return
	}
	mg.bg.Add(1)
	go func() {
		defer mg.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), mg.cfg.ChainTimeout)
		defer cancel()
		status, err := mg.settlement.MatchStatus(ctx, chainMatchID)
		l := mg.logger.WithFields(logrus.Fields{"match": id, "chainMatch": chainMatchID})
		if err != nil {
			l.Warnf("chain status check failed: %v", err)
			return
		}
		l.Infof("chain match status at start: %s", status)
	}()
}

func (mg *Manager) submitSettlement(id uuid.UUID, job settleJob) {
	if mg.settlement == nil || job.chainMatchID == "" || len(job.payouts) == 0 {
		return
	}
	mg.bg.Add(1)
	go func() {
		defer mg.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), mg.cfg.ChainTimeout)
		defer cancel()
		l := mg.logger.WithFields(logrus.Fields{"match": id, "chainMatch": job.chainMatchID})
		tx, err := mg.settlement.Settle(ctx, job.chainMatchID, job.payouts)
		if err != nil {
			mg.metrics.SettlementFailed()
			l.Errorf("settlement failed, retry out of band: %v", err)
			return
		}
		l.Infof("settlement submitted: %s", tx)
		err = mg.withMatch(id, func(m *Match, fx *effects) error {
			m.SettlementTx = tx
			mg.emit(m, fx, EventSettlementSubmitted, "", map[string]any{"txHash": tx})
			return nil
		})
		if err != nil {
			l.Warnf("settlement recorded after eviction: %v", err)
		}
	}()
}

func (mg *Manager) newTask() *Task {
	mg.rngMu.Lock()
	defer mg.rngMu.Unlock()
	return GenerateTask(mg.rng)
}

func (mg *Manager) assignRoles(participants []string) (map[string]Role, error) {
	mg.rngMu.Lock()
	defer mg.rngMu.Unlock()
	return AssignRoles(participants, mg.rng)
}

// Lookup resolves a join code to the public view of its match.
func (mg *Manager) Lookup(code string) (PublicView, error) {
	m, ok := mg.store.byCode(code)
	if !ok {
		return PublicView{}, fmt.Errorf("%w: code %s", ErrNotFound, code)
	}
	return mg.PublicView(m.ID)
}

// PublicView returns the spectator-safe view of a match.
func (mg *Manager) PublicView(id uuid.UUID) (PublicView, error) {
	var v PublicView
	err := mg.read(id, func(m *Match) error {
		v = mg.publicView(m)
		return nil
	})
	return v, err
}

// ParticipantView returns what participant p may see of the match.
func (mg *Manager) ParticipantView(id uuid.UUID, p string) (ParticipantView, error) {
	var v ParticipantView
	err := mg.read(id, func(m *Match) error {
		if !m.IsMember(p) {
			return fmt.Errorf("%w: %s", ErrNotAMember, p)
		}
		v = mg.participantView(m, p)
		return nil
	})
	return v, err
}

// SyncParticipant pushes a fresh sync_state to one participant, used on (re)connect.
func (mg *Manager) SyncParticipant(id uuid.UUID, p string) error {
	v, err := mg.ParticipantView(id, p)
	if err != nil {
		return err
	}
	mg.broadcaster.SendTo(id, p, Event{
		Type:        EventSyncState,
		MatchID:     id,
		Phase:       v.Phase,
		Participant: p,
		State:       v,
		At:          mg.now(),
	})
	return nil
}

func (mg *Manager) read(id uuid.UUID, fn func(m *Match) error) error {
	m, ok := mg.store.get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m)
}

// ActiveMatches counts the matches held in memory.
func (mg *Manager) ActiveMatches() int {
	return mg.store.count()
}
