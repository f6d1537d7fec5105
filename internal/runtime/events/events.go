// Package events holds the messages produced by the dispatch runtime itself:
// the caught-exception event published whenever protected execution traps a
// fault, and the acknowledgment returned for work accepted in the background.
package events

import (
	"github.com/drblury/parcelflow/internal/runtime/ids"
	"github.com/drblury/parcelflow/internal/runtime/parcel"
)

// CaughtExceptionEvent records a fault trapped by protected execution. It is a
// plain data record, not an error.
type CaughtExceptionEvent struct {
	UUID      string
	Context   any
	Error     string
	Message   string
	Backtrace string
}

// Kind returns the event kind.
func (e *CaughtExceptionEvent) Kind() string {
	return parcel.KindCaughtException
}

// ToMessage renders the event in its wire shape.
func (e *CaughtExceptionEvent) ToMessage() parcel.Message {
	return parcel.Message{
		"kind":      parcel.KindCaughtException,
		"uuid":      e.UUID,
		"context":   renderContext(e.Context),
		"error":     e.Error,
		"message":   e.Message,
		"backtrace": e.Backtrace,
	}
}

// Parcel wraps the event into an error-kind parcel.
func (e *CaughtExceptionEvent) Parcel() parcel.Parcel {
	return parcel.Parcel{
		Headers: parcel.Headers{Kind: parcel.KindCaughtException, UUID: e.UUID},
		Message: e.ToMessage(),
	}
}

// MessageAcceptedEvent signals that a request was accepted for background
// processing. Message carries the request that was accepted.
type MessageAcceptedEvent struct {
	UUID    string
	Message any
}

// NewMessageAcceptedEvent builds an acceptance event for request.
func NewMessageAcceptedEvent(request any) *MessageAcceptedEvent {
	return &MessageAcceptedEvent{UUID: ids.CreateCodedUUID(), Message: request}
}

// Kind returns the event kind.
func (e *MessageAcceptedEvent) Kind() string {
	return parcel.KindMessageAccepted
}

// ToMessage renders the event in its wire shape.
func (e *MessageAcceptedEvent) ToMessage() parcel.Message {
	return parcel.Message{
		"kind":    parcel.KindMessageAccepted,
		"uuid":    e.UUID,
		"message": renderContext(e.Message),
	}
}

// Parcel wraps the event into a parcel without causality. Callers stamp it
// against the request they acknowledge.
func (e *MessageAcceptedEvent) Parcel() parcel.Parcel {
	return parcel.Parcel{
		Headers: parcel.Headers{Kind: parcel.KindMessageAccepted},
		Message: e.ToMessage(),
	}
}

func renderContext(ctx any) any {
	switch typed := ctx.(type) {
	case parcel.Parcel:
		return parcel.Message{
			"headers": parcel.Message{
				"kind":        typed.Headers.Kind,
				"uuid":        typed.Headers.UUID,
				"parent_uuid": typed.Headers.ParentUUID,
				"origin_uuid": typed.Headers.OriginUUID,
			},
			"message": typed.Message.Clone(),
		}
	case *parcel.Parcel:
		if typed == nil {
			return nil
		}
		return renderContext(*typed)
	case parcel.Message:
		return typed.Clone()
	default:
		return ctx
	}
}
