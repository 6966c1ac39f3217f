package sim

import (
	"encoding/json"
	"time"
)

// EventType classifies journal entries.
type EventType uint8

const (
	EventTypeUnknown EventType = iota
	EventTypeTick              // Tick boundary with work counters
	EventTypeObstacleAdded
	EventTypeObstacleRemoved
	EventTypeObstacleMoved
	EventTypeTerrain
	EventTypeOrder
	EventTypeFieldBuilt
	EventTypeFieldDiscarded
)

// EventVersion for backwards compatibility in replay
const EventVersion uint8 = 1

// Event is one journal line.
type Event struct {
	Version   uint8     `json:"version"`
	Type      EventType `json:"type"`
	Timestamp int64     `json:"timestamp"` // Unix nano
	Sequence  uint64    `json:"sequence"`
	TickNum   uint64    `json:"tickNum"`
	Source    string    `json:"source"` // obstacle or field ID, used for rate limiting
	Payload   []byte    `json:"payload"`
}

func (t EventType) String() string {
	switch t {
	case EventTypeTick:
		return "tick"
	case EventTypeObstacleAdded:
		return "obstacle_added"
	case EventTypeObstacleRemoved:
		return "obstacle_removed"
	case EventTypeObstacleMoved:
		return "obstacle_moved"
	case EventTypeTerrain:
		return "terrain"
	case EventTypeOrder:
		return "order"
	case EventTypeFieldBuilt:
		return "field_built"
	case EventTypeFieldDiscarded:
		return "field_discarded"
	default:
		return "unknown"
	}
}

// TickPayload records what one tick did.
type TickPayload struct {
	Changes     int   `json:"changes"`
	Rebuilt     int   `json:"rebuilt"`
	Discarded   int   `json:"discarded"`
	Units       int   `json:"units"`
	DeltaTimeNs int64 `json:"deltaTimeNs"`
}

// CostPayload mirrors a nav.CostChange.
type CostPayload struct {
	Revision uint64 `json:"revision"`
	Cells    int    `json:"cells"`
}

// OrderPayload records a move order.
type OrderPayload struct {
	FieldID string   `json:"fieldId"`
	Units   []string `json:"units"`
	DestX   int      `json:"destX"`
	DestY   int      `json:"destY"`
}

// FieldPayload records a field build.
type FieldPayload struct {
	FieldID     string `json:"fieldId"`
	Rebuild     bool   `json:"rebuild"`
	Relaxations int    `json:"relaxations"`
	Reached     int    `json:"reached"`
	DurationNs  int64  `json:"durationNs"`
}

// EncodePayload marshals a payload to JSON bytes
func EncodePayload(payload interface{}) []byte {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}

// NewEvent creates a new event with the current timestamp
func NewEvent(eventType EventType, tickNum uint64, source string, payload interface{}) Event {
	return Event{
		Version:   EventVersion,
		Type:      eventType,
		Timestamp: time.Now().UnixNano(),
		TickNum:   tickNum,
		Source:    source,
		Payload:   EncodePayload(payload),
	}
}
