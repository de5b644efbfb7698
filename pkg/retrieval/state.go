package retrieval

import (
	"errors"
	"time"

	errs "igengage/pkg/errors"
	"igengage/pkg/models"
)

// Phase is one of the two retrieval passes over a post
type Phase string

const (
	PhaseComments Phase = "comments"
	PhaseLikes    Phase = "likes"
)

// Kind returns the interaction kind a phase produces
func (p Phase) Kind() models.Kind {
	if p == PhaseLikes {
		return models.KindLike
	}
	return models.KindComment
}

// State of a phase. Completed and Failed are terminal.
type State int

const (
	StateIdle State = iota
	StateFetching
	StateCompleted
	StateRateLimited
	StateAuthExpired
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateCompleted:
		return "completed"
	case StateRateLimited:
		return "rate_limited"
	case StateAuthExpired:
		return "auth_expired"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the phase has finished
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// stateFor classifies an iterator error into the state it moves the phase to
func stateFor(err error) State {
	if errs.IsCanceled(err) {
		return StateFailed
	}
	switch errs.KindOf(err) {
	case errs.KindAuthExpired:
		return StateAuthExpired
	case errs.KindPlatformRateLimited, errs.KindTransientConnectivity:
		return StateRateLimited
	default:
		return StateFailed
	}
}

// phaseState is the live bookkeeping of one phase, discarded when it ends
type phaseState struct {
	phase     Phase
	state     State
	limit     models.Limit
	retries   int
	refreshes int
	items     []models.Interaction
	err       error
	started   time.Time
}

func (s *phaseState) report() PhaseReport {
	return PhaseReport{
		Phase:     s.phase,
		Outcome:   s.state,
		Fetched:   len(s.items),
		Retries:   s.retries,
		Refreshes: s.refreshes,
		Duration:  time.Since(s.started),
		Err:       s.err,
	}
}

// PhaseReport summarizes how a phase ended
type PhaseReport struct {
	Phase     Phase
	Outcome   State
	Fetched   int
	Retries   int
	Refreshes int
	Duration  time.Duration
	// Resumed is set when the phase was restored instead of fetched
	Resumed bool
	Err     error
}

// Result of one retrieval run. Interactions keep retrieval order, comments
// before likes, and may contain duplicates after a restarted phase.
type Result struct {
	Post         *models.PostSummary
	Interactions []models.Interaction
	Phases       []PhaseReport
	Started      time.Time
	Finished     time.Time
}

// Complete reports whether every phase completed
func (r *Result) Complete() bool {
	for _, p := range r.Phases {
		if p.Outcome != StateCompleted {
			return false
		}
	}
	return len(r.Phases) > 0
}

// Err joins the errors of failed phases, nil when all completed
func (r *Result) Err() error {
	var all []error
	for _, p := range r.Phases {
		if p.Err != nil && p.Outcome == StateFailed {
			all = append(all, p.Err)
		}
	}
	return errors.Join(all...)
}

// Phase returns the report for p
func (r *Result) Phase(p Phase) (PhaseReport, bool) {
	for _, rep := range r.Phases {
		if rep.Phase == p {
			return rep, true
		}
	}
	return PhaseReport{}, false
}

// Count returns the number of collected interactions of kind
func (r *Result) Count(kind models.Kind) int {
	return models.CountKind(r.Interactions, kind)
}
