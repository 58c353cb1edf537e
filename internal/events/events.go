// Package events defines the allocation event envelope and its publishers.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Event types published by the allocation engine.
const (
	TypeOfferCreated      = "EVENT_OFFER_CREATED"
	TypeOfferAccepted     = "EVENT_OFFER_ACCEPTED"
	TypeOfferRejected     = "EVENT_OFFER_REJECTED"
	TypeCandidateRejected = "EVENT_CANDIDATE_REJECTED"
	TypeGroupStateChanged = "EVENT_GROUP_STATE_CHANGED"
)

// Event is the JSON envelope sent to subscribers.
type Event struct {
	Type    string          `json:"type"`
	Version int             `json:"v"`
	At      time.Time       `json:"at"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// New builds a version 1 event. data is marshalled to JSON.
func New(typ string, at time.Time, data any) Event {
	var raw json.RawMessage
	if data != nil {
		b, _ := json.Marshal(data)
		raw = b
	}
	return Event{Type: typ, Version: 1, At: at.UTC(), Data: raw}
}

// Encode returns the wire form of the event.
func (e Event) Encode() []byte {
	b, _ := json.Marshal(e)
	return b
}

// Publisher delivers events to an external audience.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Fanout publishes every event to all publishers and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, evt Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }
