package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StudySummary is one entry of the participant study list.
type StudySummary struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Reward decimal.Decimal `json:"reward"`
}

func (s StudySummary) String() string {
	return fmt.Sprintf("%s (%s, reward %s)", s.Name, s.ID, s.Reward.String())
}

// ReservationEvent is emitted once a study has been reserved.
type ReservationEvent struct {
	ID            uuid.UUID       `json:"id"`
	RunID         uuid.UUID       `json:"run_id"`
	EventType     string          `json:"event_type"`
	StudyID       string          `json:"study_id"`
	StudyName     string          `json:"study_name"`
	Reward        decimal.Decimal `json:"reward"`
	ParticipantID string          `json:"participant_id"`
	Iterations    int             `json:"iterations"`
	Timestamp     time.Time       `json:"timestamp"`
}

// NewReservationEvent builds a study.reserved event for the given run.
func NewReservationEvent(runID uuid.UUID, study StudySummary, participantID string, iterations int) ReservationEvent {
	return ReservationEvent{
		ID:            uuid.New(),
		RunID:         runID,
		EventType:     "study.reserved",
		StudyID:       study.ID,
		StudyName:     study.Name,
		Reward:        study.Reward,
		ParticipantID: participantID,
		Iterations:    iterations,
		Timestamp:     time.Now().UTC(),
	}
}
