package parcel

import idspkg "github.com/drblury/parcelflow/internal/runtime/ids"

// Causality is the uuid/parent_uuid/origin_uuid triple of one parcel.
type Causality struct {
	UUID       string
	ParentUUID string
	OriginUUID string
}

// UUIDGenerator creates fresh parcel ids.
type UUIDGenerator func() string

// DefaultUUIDGenerator produces 22-character time-ordered ids.
var DefaultUUIDGenerator UUIDGenerator = idspkg.CreateCodedUUID

// NewCausality derives a fresh causality triple from parent. A nil parent
// yields a root triple where only UUID is set.
func NewCausality(parent *Headers) Causality {
	return newCausality(DefaultUUIDGenerator, parent)
}

func newCausality(gen UUIDGenerator, parent *Headers) Causality {
	c := Causality{UUID: gen()}
	if parent == nil {
		return c
	}
	c.ParentUUID = parent.UUID
	c.OriginUUID = firstNonEmpty(parent.OriginUUID, parent.ParentUUID, parent.UUID)
	return c
}

// Apply copies the triple into h.
func (c Causality) Apply(h Headers) Headers {
	h.UUID = c.UUID
	h.ParentUUID = c.ParentUUID
	h.OriginUUID = c.OriginUUID
	return h
}

// Tag fills in missing causality fields on a request parcel. An existing UUID
// is never replaced. A parcel without parent and origin becomes a root whose
// parent and origin point at itself.
func Tag(p Parcel) Parcel {
	h := p.Headers.Clone()
	if h.UUID == "" {
		h.UUID = DefaultUUIDGenerator()
	}
	switch {
	case h.OriginUUID == "" && h.ParentUUID == "":
		h.OriginUUID = h.UUID
		h.ParentUUID = h.UUID
	case h.ParentUUID == "":
		h.ParentUUID = h.OriginUUID
	case h.OriginUUID == "":
		h.OriginUUID = h.ParentUUID
	}
	out := p
	out.Headers = h
	return out
}

// Derive builds a response parcel for msg caused by request. The response
// kind is taken from the message "kind" entry.
func Derive(request Parcel, msg Message) Parcel {
	h := NewCausality(&request.Headers).Apply(Headers{Kind: msg.Kind()})
	return Parcel{Headers: h, Message: msg}
}

// Stamp gives p fresh causality derived from request unless p already has a
// UUID.
func Stamp(request Parcel, p Parcel) Parcel {
	if p.Headers.UUID != "" {
		return p
	}
	out := p
	out.Headers = NewCausality(&request.Headers).Apply(p.Headers.Clone())
	if out.Headers.Kind == "" {
		out.Headers.Kind = p.Message.Kind()
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
