package patient

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of domain event.
type EventType string

const (
	EventSummaryGenerated    EventType = "SummaryGenerated"
	EventSummaryFailed       EventType = "SummaryFailed"
	EventSummaryInvalidated  EventType = "SummaryInvalidated"
	EventExchangeFileParsed  EventType = "ExchangeFileParsed"
	EventExchangeFileSkipped EventType = "ExchangeFileSkipped"
)

// Event represents a domain event recorded when patient context changes
// or a summary is produced. Events flow through the transactional
// outbox to the broker.
type Event struct {
	ID            string          `json:"id"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     EventType       `json:"event_type"`
	EventData     json.RawMessage `json:"event_data"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}

// NewEvent creates a new event for the given patient cache key.
func NewEvent(aggregateID string, eventType EventType, data interface{}) (*Event, error) {
	eventData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: "Patient",
		EventType:     eventType,
		EventData:     eventData,
		Timestamp:     time.Now().UTC(),
	}, nil
}

// SummaryGeneratedData records a completed summary generation.
type SummaryGeneratedData struct {
	CacheKey     string    `json:"cache_key"`
	Source       string    `json:"source"`
	Forced       bool      `json:"forced"`
	DurationMS   int64     `json:"duration_ms"`
	RedFlagCount int       `json:"red_flag_count"`
	CitationRows int       `json:"citation_rows"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// SummaryFailedData records a generation attempt that fell back to the
// error-shaped summary.
type SummaryFailedData struct {
	CacheKey string    `json:"cache_key"`
	Source   string    `json:"source"`
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failed_at"`
}

// ExchangeFileParsedData records a successfully ingested exchange file.
type ExchangeFileParsedData struct {
	FileName    string    `json:"file_name"`
	PatientKey  string    `json:"patient_key"`
	BDTLinked   bool      `json:"bdt_linked"`
	ContentHash string    `json:"content_hash"`
	ParsedAt    time.Time `json:"parsed_at"`
}
