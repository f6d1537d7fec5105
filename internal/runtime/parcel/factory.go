package parcel

import "maps"

// Factory creates parcels with fresh causality derived from a parent.
type Factory struct {
	UUIDs UUIDGenerator
}

// NewFactory returns a Factory using DefaultUUIDGenerator.
func NewFactory() *Factory {
	return &Factory{UUIDs: DefaultUUIDGenerator}
}

// CreateOptions describes the parcel a Factory should build.
type CreateOptions struct {
	Kind    string
	Parent  *Headers
	Headers Headers
	Message Message
}

// Create builds a parcel. Freshly generated ids overwrite any ids present in
// opts.Headers, and Kind overwrites the header kind.
func (f *Factory) Create(opts CreateOptions) Parcel {
	gen := f.UUIDs
	if gen == nil {
		gen = DefaultUUIDGenerator
	}
	h := opts.Headers
	h.Extra = maps.Clone(h.Extra)
	h = newCausality(gen, opts.Parent).Apply(h)
	h.Kind = opts.Kind

	msg := opts.Message
	if msg == nil {
		msg = Message{}
	}
	return Parcel{Headers: h, Message: msg}
}
