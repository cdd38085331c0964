package sds

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimestampLayout is the wire encoding of event timestamps. It doubles as
// the record key encoding inside a stream.
const TimestampLayout = time.RFC3339Nano

// Event is one streaming data point.
//
// Construct events with NewValuedEvent or NewStatedEvent; the struct is
// fully shaped at creation and not mutated afterwards.
type Event struct {
	Timestamp        time.Time
	Value            *float64
	IsQuestionable   bool
	IsSubstituted    bool
	IsAnnotated      bool
	SystemStateCode  *int32
	DigitalStateName string
}

// Quality holds the independent data-quality flags of an event.
type Quality struct {
	Questionable bool
	Substituted  bool
	Annotated    bool
}

// NewValuedEvent builds an event carrying a numeric measurement.
func NewValuedEvent(ts time.Time, value float64, q Quality) Event {
	v := value
	return Event{
		Timestamp:      ts,
		Value:          &v,
		IsQuestionable: q.Questionable,
		IsSubstituted:  q.Substituted,
		IsAnnotated:    q.Annotated,
	}
}

// NewStatedEvent builds an event carrying a system state instead of a value.
func NewStatedEvent(ts time.Time, code int32, stateName string, q Quality) Event {
	c := code
	return Event{
		Timestamp:        ts,
		IsQuestionable:   q.Questionable,
		IsSubstituted:    q.Substituted,
		IsAnnotated:      q.Annotated,
		SystemStateCode:  &c,
		DigitalStateName: stateName,
	}
}

// Valued reports whether the event carries a value and no state.
func (e Event) Valued() bool {
	return e.Value != nil && e.SystemStateCode == nil && e.DigitalStateName == ""
}

// Stated reports whether the event carries a state and no value.
func (e Event) Stated() bool {
	return e.Value == nil && e.SystemStateCode != nil
}

// Key returns the record key of the event within its stream.
func (e Event) Key() string {
	return e.Timestamp.UTC().Format(TimestampLayout)
}

// Validate checks the valued-or-stated invariant.
func (e Event) Validate() error {
	if e.Timestamp.IsZero() {
		return fmt.Errorf("event timestamp is required")
	}
	if e.Valued() == e.Stated() {
		return fmt.Errorf("event %s must be either valued or stated", e.Key())
	}
	return nil
}

type wireEvent struct {
	Timestamp        string   `json:"Timestamp"`
	Value            *float64 `json:"Value,omitempty"`
	IsQuestionable   bool     `json:"IsQuestionable"`
	IsSubstituted    bool     `json:"IsSubstituted"`
	IsAnnotated      bool     `json:"IsAnnotated"`
	SystemStateCode  *int32   `json:"SystemStateCode,omitempty"`
	DigitalStateName string   `json:"DigitalStateName,omitempty"`
}

// MarshalJSON encodes the event with SDS property names. Absent optional
// fields are omitted.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireEvent{
		Timestamp:        e.Key(),
		Value:            e.Value,
		IsQuestionable:   e.IsQuestionable,
		IsSubstituted:    e.IsSubstituted,
		IsAnnotated:      e.IsAnnotated,
		SystemStateCode:  e.SystemStateCode,
		DigitalStateName: e.DigitalStateName,
	})
}

// UnmarshalJSON decodes an event in the SDS wire shape.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	ts, err := time.Parse(TimestampLayout, w.Timestamp)
	if err != nil {
		return fmt.Errorf("event timestamp: %w", err)
	}
	*e = Event{
		Timestamp:        ts,
		Value:            w.Value,
		IsQuestionable:   w.IsQuestionable,
		IsSubstituted:    w.IsSubstituted,
		IsAnnotated:      w.IsAnnotated,
		SystemStateCode:  w.SystemStateCode,
		DigitalStateName: w.DigitalStateName,
	}
	return nil
}
