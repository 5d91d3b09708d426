package models

import (
	"encoding/json"
	"time"
)

// ReviewJob is one completed review run as persisted in job history.
// Structured fields are stored as JSON columns; POAnalysis and Failures stay
// raw so the storage layer has no dependency on the review package.
type ReviewJob struct {
	ID             string            `json:"id"`
	CompanyName    string            `json:"company_name"`
	StartedAt      time.Time         `json:"started_at"`
	FinishedAt     time.Time         `json:"finished_at"`
	DocumentCount  int               `json:"document_count"`
	DocumentTypes  map[string]string `json:"document_types"`
	POAnalysis     json.RawMessage   `json:"po_analysis,omitempty"`
	InvokedClauses []string          `json:"invoked_clauses"`
	Failures       json.RawMessage   `json:"failures,omitempty"`
}
