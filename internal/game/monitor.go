// internal/game/monitor.go
package game

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// MonitorConfig bounds how long matches may run before the monitor intervenes.
type MonitorConfig struct {
	Interval       time.Duration
	MaxMatch       time.Duration
	MaxPhase       time.Duration
	EndedRetention time.Duration
}

// DefaultMonitorConfig sweeps every minute, ends matches after 30 minutes, forces phases
// stuck for 5 minutes and forgets ended matches after 10 minutes.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Interval:       time.Minute,
		MaxMatch:       30 * time.Minute,
		MaxPhase:       5 * time.Minute,
		EndedRetention: 10 * time.Minute,
	}
}

// SweepReport counts what one sweep did.
type SweepReport struct {
	Checked     int
	Terminated  int
	PhaseForced int
	Evicted     int
	Failures    int
}

// Monitor force-advances stuck matches and evicts finished ones.
type Monitor struct {
	mg     *Manager
	cfg    MonitorConfig
	logger logrus.FieldLogger
}

func NewMonitor(mg *Manager, cfg MonitorConfig) *Monitor {
	d := DefaultMonitorConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = d.Interval
	}
	if cfg.MaxMatch <= 0 {
		cfg.MaxMatch = d.MaxMatch
	}
	if cfg.MaxPhase <= 0 {
		cfg.MaxPhase = d.MaxPhase
	}
	if cfg.EndedRetention <= 0 {
		cfg.EndedRetention = d.EndedRetention
	}
	return &Monitor{mg: mg, cfg: cfg, logger: mg.logger.WithField("component", "monitor")}
}

// Run sweeps on every interval until ctx is done.
func (mon *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(mon.cfg.Interval)
	defer ticker.Stop()
	mon.logger.Infof("stuck match monitor running every %s", mon.cfg.Interval)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			rep := mon.Sweep(mon.mg.now())
			if rep.Terminated+rep.PhaseForced+rep.Evicted+rep.Failures > 0 {
				mon.logger.WithFields(logrus.Fields{
					"checked":    rep.Checked,
					"terminated": rep.Terminated,
					"forced":     rep.PhaseForced,
					"evicted":    rep.Evicted,
					"failures":   rep.Failures,
				}).Info("sweep finished")
			}
		}
	}
}

// Sweep inspects every match once. A failing match is logged and retried next sweep.
func (mon *Monitor) Sweep(now time.Time) SweepReport {
	var rep SweepReport
	for _, m := range mon.mg.store.snapshot() {
		rep.Checked++
		action, err := mon.sweepOne(m, now)
		if err != nil {
			rep.Failures++
			mon.logger.WithField("match", m.ID).Errorf("sweep: %v", err)
			continue
		}
		switch action {
		case "match_ceiling":
			rep.Terminated++
		case "phase_ceiling":
			rep.PhaseForced++
		case "evicted":
			rep.Evicted++
		}
	}
	return rep
}

func (mon *Monitor) sweepOne(m *Match, now time.Time) (action string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	err = mon.mg.withMatch(m.ID, func(m *Match, fx *effects) error {
		switch m.Phase {
		case PhaseLobby:
			return nil
		case PhaseEnded:
			if now.Sub(m.EndedAt) > mon.cfg.EndedRetention {
				fx.evict = true
				action = "evicted"
			}
			return nil
		case PhaseNight, PhaseResolution, PhaseTask, PhaseVoting:
		}

		l := mon.mg.log(m)
		switch {
		case now.Sub(m.StartedAt) > mon.cfg.MaxMatch:
			l.Warnf("match exceeded %s, forcing end", mon.cfg.MaxMatch)
			mon.mg.emit(m, fx, EventMatchTimeout, "", timeoutPayload(mon.cfg.MaxMatch))
			mon.mg.forceEnd(m, fx)
			action = "match_ceiling"
		case now.Sub(m.PhaseStartedAt) > mon.cfg.MaxPhase:
			l.Warnf("phase exceeded %s, forcing timeout", mon.cfg.MaxPhase)
			mon.mg.emit(m, fx, EventPhaseTimeout, "", timeoutPayload(mon.cfg.MaxPhase))
			mon.mg.handleTimerExpired(m, fx)
			if m.Phase.Active() {
				m.PhaseStartedAt = now
			}
			action = "phase_ceiling"
		}
		return nil
	})
	if action != "" && action != "evicted" {
		mon.mg.metrics.StuckMatchForced(action)
	}
	return action, err
}

func timeoutPayload(limit time.Duration) map[string]any {
	return map[string]any{"cause": "timeout", "limitSeconds": int(limit.Seconds())}
}
