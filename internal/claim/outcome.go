package claim

import (
	"fmt"
	"net/http"
)

// State is a poll-reserve loop state.
type State int

const (
	StatePolling State = iota
	StateReserving
	StateRenewing
	StateBackoff
	StateSucceeded
	StateFatal
)

func (s State) String() string {
	switch s {
	case StatePolling:
		return "polling"
	case StateReserving:
		return "reserving"
	case StateRenewing:
		return "renewing"
	case StateBackoff:
		return "backoff"
	case StateSucceeded:
		return "succeeded"
	case StateFatal:
		return "fatal"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transitions leave s.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFatal
}

// ListOutcome classifies a list-studies response.
type ListOutcome int

const (
	StudiesFound ListOutcome = iota
	NoStudies
	SessionExpired
	UnexpectedListStatus
)

func (o ListOutcome) String() string {
	switch o {
	case StudiesFound:
		return "studies_found"
	case NoStudies:
		return "no_studies"
	case SessionExpired:
		return "session_expired"
	default:
		return "unexpected_status"
	}
}

// ClassifyList maps a list-studies status and result count to an outcome.
// 404 means the session context was lost, not that a resource is missing.
func ClassifyList(status, count int) ListOutcome {
	switch status {
	case http.StatusOK:
		if count == 0 {
			return NoStudies
		}
		return StudiesFound
	case http.StatusNotFound:
		return SessionExpired
	default:
		return UnexpectedListStatus
	}
}

// ReserveOutcome classifies a reserve-study response.
type ReserveOutcome int

const (
	Reserved ReserveOutcome = iota
	StudyFull
	TokenExpired
	UnknownFailure
)

func (o ReserveOutcome) String() string {
	switch o {
	case Reserved:
		return "reserved"
	case StudyFull:
		return "study_full"
	case TokenExpired:
		return "token_expired"
	default:
		return "unknown_failure"
	}
}

// ClassifyReserve maps a reserve-study status to an outcome.
func ClassifyReserve(status int) ReserveOutcome {
	switch status {
	case http.StatusCreated:
		return Reserved
	case http.StatusBadRequest:
		return StudyFull
	case http.StatusNotFound:
		return TokenExpired
	default:
		return UnknownFailure
	}
}

// UnexpectedStatusError is returned when an upstream status falls outside the known contract.
type UnexpectedStatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *UnexpectedStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.Status, e.Body)
}
