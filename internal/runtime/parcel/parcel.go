// Package parcel defines the header+message envelope that flows through the
// dispatch pipeline and the causality rules that correlate responses with the
// requests that produced them.
package parcel

import "maps"

// Header keys used when headers are flattened into transport metadata.
const (
	HeaderKind        = "kind"
	HeaderUUID        = "uuid"
	HeaderParentUUID  = "parent_uuid"
	HeaderOriginUUID  = "origin_uuid"
	HeaderElapsedTime = "serf_elapsed_time"
)

// Message is the payload of a parcel. Its shape is defined by the parcel kind.
type Message map[string]any

// Kind returns the "kind" entry of the message when it is a string.
func (m Message) Kind() string {
	kind, _ := m[HeaderKind].(string)
	return kind
}

// Clone deep-copies the message. Nested maps and slices are copied so the
// clone shares no mutable state with m.
func (m Message) Clone() Message {
	if m == nil {
		return nil
	}
	out := make(Message, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch typed := v.(type) {
	case Message:
		return typed.Clone()
	case map[string]any:
		return map[string]any(Message(typed).Clone())
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = cloneValue(item)
		}
		return out
	case []Message:
		out := make([]Message, len(typed))
		for i, item := range typed {
			out[i] = item.Clone()
		}
		return out
	case map[string]string:
		return maps.Clone(typed)
	case []string:
		return append([]string(nil), typed...)
	default:
		return v
	}
}

// Headers carries the routing discriminator and the causality chain of a
// parcel. Extra holds transport or diagnostic fields that have no dedicated
// slot.
type Headers struct {
	Kind        string            `json:"kind,omitempty"`
	UUID        string            `json:"uuid,omitempty"`
	ParentUUID  string            `json:"parent_uuid,omitempty"`
	OriginUUID  string            `json:"origin_uuid,omitempty"`
	ElapsedTime int64             `json:"serf_elapsed_time,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// Clone returns a copy of the headers with its own Extra map.
func (h Headers) Clone() Headers {
	h.Extra = maps.Clone(h.Extra)
	return h
}

// Get returns a header value by its flattened key.
func (h Headers) Get(key string) string {
	switch key {
	case HeaderKind:
		return h.Kind
	case HeaderUUID:
		return h.UUID
	case HeaderParentUUID:
		return h.ParentUUID
	case HeaderOriginUUID:
		return h.OriginUUID
	}
	return h.Extra[key]
}

// Parcel is the envelope handed between pipeline stages.
type Parcel struct {
	Headers Headers `json:"headers"`
	Message Message `json:"message"`

	sealed bool
}

// New builds a parcel with the given kind and message.
func New(kind string, message Message) Parcel {
	return Parcel{Headers: Headers{Kind: kind}, Message: message}
}

// Kind returns the routing discriminator.
func (p Parcel) Kind() string {
	return p.Headers.Kind
}

// Sealed reports whether the parcel went through Seal.
func (p Parcel) Sealed() bool {
	return p.sealed
}

// Seal returns a deep copy of the parcel marked read-only. Mutating the maps
// of the original after sealing does not affect the sealed copy.
func (p Parcel) Seal() Parcel {
	if p.sealed {
		return p
	}
	return Parcel{
		Headers: p.Headers.Clone(),
		Message: p.Message.Clone(),
		sealed:  true,
	}
}

// Clone returns an unsealed deep copy that callers may modify freely.
func (p Parcel) Clone() Parcel {
	return Parcel{
		Headers: p.Headers.Clone(),
		Message: p.Message.Clone(),
	}
}

// WithHeaders returns a copy of the parcel carrying h.
func (p Parcel) WithHeaders(h Headers) Parcel {
	out := p.Clone()
	out.Headers = h.Clone()
	return out
}

// WithMessage returns a copy of the parcel carrying m.
func (p Parcel) WithMessage(m Message) Parcel {
	out := p.Clone()
	out.Message = m.Clone()
	return out
}

// Normalize ensures the message and the header extras are non-nil maps.
func Normalize(p Parcel) Parcel {
	if p.Message != nil && p.Headers.Extra != nil {
		return p
	}
	out := p
	if out.Message == nil {
		out.Message = Message{}
	}
	if out.Headers.Extra == nil {
		out.Headers.Extra = map[string]string{}
	}
	return out
}

// Kinds produced by the dispatch runtime itself.
const (
	KindCaughtException = "parcelflow/caught_exception_event"
	KindMessageAccepted = "parcelflow/message_accepted_event"
)

// IsError reports whether the parcel carries a caught-exception event.
func (p Parcel) IsError() bool {
	return p.Headers.Kind == KindCaughtException
}
