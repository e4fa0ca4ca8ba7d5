// Package workflow advances patient cases through the dispatch pipeline on a
// fixed tick cadence. All timing rules live in one scheduler rather than a
// timer per stage, so a single pass over the store evaluates every case
// exactly once per tick.
package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/erflow/erflow/internal/domain/patient"
)

// Rule is a single engine-driven edge out of a source status. A case must
// have dwelled in From for at least Dwell, and Ready (when set) must hold,
// before the edge fires. Each source status carries at most one rule; the
// constructor rejects competing rules so tick evaluation is unambiguous.
// Ready runs while the store lock is held and must be a pure predicate over
// the case fields.
type Rule struct {
	From  patient.Status
	To    patient.Status
	Dwell time.Duration
	Ready func(*patient.Case) bool
}

// Dwells parameterizes the stage pacing. The demo values (3s/2s/5s/8s) are
// placeholders for a live pipeline, not clinical timings.
type Dwells struct {
	PrepReady    time.Duration
	InTransit    time.Duration
	TheatreMove  time.Duration
	TheatreEntry time.Duration
}

// DefaultDwells returns the demo pacing.
func DefaultDwells() Dwells {
	return Dwells{
		PrepReady:    3 * time.Second,
		InTransit:    2 * time.Second,
		TheatreMove:  5 * time.Second,
		TheatreEntry: 8 * time.Second,
	}
}

// DefaultRules builds the standard pipeline rules with the given pacing.
// Arrival is not a rule here: the countdown against the dispatch time is
// evaluated separately and overrides staging for every en-route status.
func DefaultRules(d Dwells) []Rule {
	return []Rule{
		{
			From:  patient.StatusDispatched,
			To:    patient.StatusPrepReady,
			Dwell: d.PrepReady,
			Ready: func(c *patient.Case) bool { return c.ResourcePlan != nil },
		},
		{
			From:  patient.StatusPrepReady,
			To:    patient.StatusInTransit,
			Dwell: d.InTransit,
			Ready: func(c *patient.Case) bool { return c.DispatchedAt != nil },
		},
		{
			From:  patient.StatusArrived,
			To:    patient.StatusMovingToTheatre,
			Dwell: d.TheatreMove,
		},
		{
			From:  patient.StatusMovingToTheatre,
			To:    patient.StatusInOperationTheatre,
			Dwell: d.TheatreEntry,
		},
	}
}

// TransitionEvent describes one applied status change.
type TransitionEvent struct {
	CaseID    uuid.UUID
	NHSNumber string
	Name      string
	From      patient.Status
	To        patient.Status
	At        time.Time
}

// Observer receives every applied transition.
type Observer func(TransitionEvent)

// Engine evaluates the rule table against the store on every tick.
type Engine struct {
	store    *patient.Store
	rules    map[patient.Status]Rule
	interval time.Duration
	log      zerolog.Logger
	observer Observer
}

// New builds an Engine. It fails if two rules share a source status or a rule
// would move a case backward through the pipeline.
func New(store *patient.Store, rules []Rule, interval time.Duration, logger zerolog.Logger) (*Engine, error) {
	table := make(map[patient.Status]Rule, len(rules))
	for _, r := range rules {
		if !r.From.Valid() || !r.To.Valid() {
			return nil, fmt.Errorf("rule %s -> %s references an unknown status", r.From, r.To)
		}
		if !r.From.Before(r.To) {
			return nil, fmt.Errorf("rule %s -> %s moves backward through the pipeline", r.From, r.To)
		}
		if _, ok := table[r.From]; ok {
			return nil, fmt.Errorf("competing rules attached to status %s", r.From)
		}
		table[r.From] = r
	}
	return &Engine{
		store:    store,
		rules:    table,
		interval: interval,
		log:      logger,
	}, nil
}

// SetObserver installs a hook called for every applied transition, in
// addition to the engine's own structured logging.
func (e *Engine) SetObserver(obs Observer) {
	e.observer = obs
}

// Run ticks the engine until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.log.Info().Dur("interval", e.interval).Msg("transition engine started")
	for {
		select {
		case <-ctx.Done():
			e.log.Info().Msg("transition engine stopped")
			return
		case now := <-ticker.C:
			e.Tick(now)
		}
	}
}

// Tick runs one evaluation pass at the given instant and returns the number
// of transitions applied. Exported so tests can drive the engine with
// synthetic time.
func (e *Engine) Tick(now time.Time) int {
	applied := 0
	for _, c := range e.store.All() {
		if e.tickCase(c.ID, now) {
			applied++
		}
	}
	return applied
}

// enRoute reports whether the status is governed by the arrival countdown.
func enRoute(s patient.Status) bool {
	return s == patient.StatusDispatched || s == patient.StatusPrepReady || s == patient.StatusInTransit
}

// tickCase evaluates one case. The whole pass runs inside a single store
// update, so a concurrent user write can never land between the engine's
// read and its commit and be overwritten.
func (e *Engine) tickCase(id uuid.UUID, now time.Time) bool {
	var ev *TransitionEvent
	err := e.store.Update(id, func(c *patient.Case) error {
		if c.Status.Terminal() {
			return nil
		}
		// A case with an assessment call in flight must not advance: a dwell
		// transition firing mid-call would race with the result being
		// attached.
		if c.AssessmentPending {
			return nil
		}

		if enRoute(c.Status) {
			// The countdown needs a dispatch origin and an estimate. A case
			// missing either is skipped this tick; it resumes once the
			// dispatch action populates the fields.
			if c.DispatchedAt == nil || c.ETATotalMinutes <= 0 {
				e.log.Debug().
					Str("nhs_number", c.NHSNumber).
					Str("status", string(c.Status)).
					Msg("skipping malformed case: no dispatch origin")
				return nil
			}

			remaining := time.Duration(c.ETATotalMinutes)*time.Minute - now.Sub(*c.DispatchedAt)
			if remaining <= 0 {
				c.ETAMinutes = patient.IntPtr(0)
				ev = e.transition(c, patient.StatusArrived, now)
				return nil
			}

			// Minutes remaining, rounded up, floored at zero by construction.
			eta := int((remaining + time.Minute - 1) / time.Minute)
			if c.ETAMinutes == nil || *c.ETAMinutes != eta {
				c.ETAMinutes = patient.IntPtr(eta)
			}
		}

		rule, ok := e.rules[c.Status]
		if !ok {
			return nil
		}
		if now.Sub(c.StatusChangedAt) < rule.Dwell {
			return nil
		}
		if rule.Ready != nil && !rule.Ready(c) {
			return nil
		}
		ev = e.transition(c, rule.To, now)
		return nil
	})
	if err != nil {
		e.log.Error().Err(err).Msg("tick update failed")
		return false
	}
	if ev == nil {
		return false
	}

	e.log.Info().
		Str("nhs_number", ev.NHSNumber).
		Str("name", ev.Name).
		Str("from", string(ev.From)).
		Str("to", string(ev.To)).
		Msg("status transition")

	if e.observer != nil {
		e.observer(*ev)
	}
	return true
}

// transition moves the case to the new status in place. Backward moves are
// rejected outright: the pipeline is monotonic.
func (e *Engine) transition(c *patient.Case, to patient.Status, now time.Time) *TransitionEvent {
	if !c.Status.Before(to) {
		e.log.Error().
			Str("nhs_number", c.NHSNumber).
			Str("from", string(c.Status)).
			Str("to", string(to)).
			Msg("refusing backward transition")
		return nil
	}

	from := c.Status
	c.Status = to
	c.StatusChangedAt = now
	return &TransitionEvent{
		CaseID:    c.ID,
		NHSNumber: c.NHSNumber,
		Name:      c.Name,
		From:      from,
		To:        to,
		At:        now,
	}
}
