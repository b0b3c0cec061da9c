package prolific

import "github.com/slotclaim/slotclaim/pkg/model"

// APIResult pairs a decoded payload with the HTTP status it arrived with.
// Callers branch on Status; Data may be empty for non-success statuses.
type APIResult[T any] struct {
	Data   T
	Status int
}

// studiesResponse is the body of GET /api/v1/participant/studies.
// A missing or null "results" decodes to an empty list.
type studiesResponse struct {
	Results []model.StudySummary `json:"results"`
}

// reserveRequest is the body of POST /api/v1/submissions/reserve/.
type reserveRequest struct {
	StudyID       string `json:"study_id"`
	ParticipantID string `json:"participant_id"`
}
