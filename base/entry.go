package base

import (
	"time"

	"github.com/google/uuid"
)

// StructuredEntry represents one structured event record emitted by an instrumented process
//
// Entries are immutable once enqueued. The same pointer may be held by the buffer and the dispatcher at once.
type StructuredEntry struct {
	EventID           int            `json:"eventId"`
	EventName         string         `json:"eventName"`
	Timestamp         time.Time      `json:"timestamp"` // serialized in UTC; index date comes from here
	Keywords          int64          `json:"keywords"`  // bit flags
	ProviderID        string         `json:"providerId"`
	ProviderName      string         `json:"providerName"`
	Level             EventLevel     `json:"level"`
	Message           string         `json:"message"` // preformatted
	Opcode            int            `json:"opcode"`
	Task              int            `json:"task"`
	Version           int            `json:"version"` // schema version
	ProcessID         int            `json:"processId"`
	ThreadID          int            `json:"threadId"`
	ActivityID        ActivityID     `json:"activityId"`        // omitted from output unless Valid
	RelatedActivityID ActivityID     `json:"relatedActivityId"` // omitted from output unless Valid
	Payload           []PayloadField `json:"payload"`
}

// PayloadField is one named value of the entry payload
//
// Value may be a string, number, boolean, time.Time, or anything else understood by encoding/json.
type PayloadField struct {
	Name  string      `json:"name"`
	Value interface{} `json:"value"`
}

// ActivityID is an optional correlation UUID; JSON null and "" both decode as absent
type ActivityID uuid.NullUUID

// UnmarshalJSON implements json.Unmarshaler
func (id *ActivityID) UnmarshalJSON(data []byte) error {
	if string(data) == `""` {
		*id = ActivityID{}
		return nil
	}
	return (*uuid.NullUUID)(id).UnmarshalJSON(data)
}

// MarshalJSON implements json.Marshaler
func (id ActivityID) MarshalJSON() ([]byte, error) {
	return uuid.NullUUID(id).MarshalJSON()
}

// EventLevel is the severity of an entry
type EventLevel int

// Severity levels, lower is more severe except LevelLogAlways
const (
	LevelLogAlways EventLevel = iota
	LevelCritical
	LevelError
	LevelWarning
	LevelInformational
	LevelVerbose
)

var levelNames = []string{
	"LogAlways",
	"Critical",
	"Error",
	"Warning",
	"Informational",
	"Verbose",
}

func (level EventLevel) String() string {
	if level < 0 || int(level) >= len(levelNames) {
		return "Unknown"
	}
	return levelNames[level]
}
