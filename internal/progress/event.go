package progress

import (
	"encoding/json"
	"fmt"
)

// Event types shared by the content scan and the taxonomy sync.
const (
	TypeStart            = "start"
	TypeProgress         = "progress"
	TypeComplete         = "complete"
	TypeError            = "error"
	TypeProgressLearning = "progress_learning"
	TypePhaseApplying    = "phase_applying"
	TypeProgressApplying = "progress_applying"
)

// Event is one state transition of a long-running job. Payload fields are
// flattened next to "type" on the wire.
type Event struct {
	Seq     uint64
	Type    string
	Payload any
}

// Start opens a scan. Total is omitted for taxonomy syncs.
type Start struct {
	Total *int `json:"total,omitempty"`
}

// ItemProgress reports one processed scan item.
type ItemProgress struct {
	Processed   int    `json:"processed"`
	Total       int    `json:"total"`
	Current     string `json:"current"`
	StartTime   int64  `json:"startTime"`
	TotalTokens int    `json:"totalTokens"`
	Tags        string `json:"tags"`
}

// Failure carries the message of an aborted job.
type Failure struct {
	Message string `json:"message"`
}

// Learning reports taxonomy batch progress across all corpus tags.
type Learning struct {
	CurrentBatch    int `json:"currentBatch"`
	TotalBatches    int `json:"totalBatches"`
	TagsInBatch     int `json:"tagsInBatch"`
	ProcessedGlobal int `json:"processedGlobal"`
	TotalGlobal     int `json:"totalGlobal"`
}

// Applying reports master-tag application progress.
type Applying struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// Completed closes a taxonomy sync with the number of items updated.
type Completed struct {
	Count int `json:"count"`
}

// MarshalJSON flattens the payload into a single object carrying "type".
func (e Event) MarshalJSON() ([]byte, error) {
	fields := map[string]any{}
	if e.Payload != nil {
		raw, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", e.Type, err)
		}
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("flatten %s payload: %w", e.Type, err)
		}
	}
	fields["type"] = e.Type
	return json.Marshal(fields)
}

// Sink receives published events.
type Sink interface {
	Publish(eventType string, payload any) Event
}

// Discard is a Sink that drops everything.
type Discard struct{}

func (Discard) Publish(eventType string, payload any) Event {
	return Event{Type: eventType, Payload: payload}
}
