package routing

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/drblury/parcelflow/internal/runtime/parcel"
)

// Matcher decides whether a registry entry applies to a parcel.
//
// Kind is special-cased by the Registry as an exact lookup against the parcel
// kind. Every other matcher is tested in registration order.
type Matcher interface {
	Matches(p parcel.Parcel) bool
}

// Kind matches parcels whose kind equals the string exactly.
type Kind string

// Matches reports whether the parcel kind equals k.
func (k Kind) Matches(p parcel.Parcel) bool {
	return p.Kind() == string(k)
}

// MatcherFunc adapts a function to the Matcher interface.
type MatcherFunc func(p parcel.Parcel) bool

// Matches calls f.
func (f MatcherFunc) Matches(p parcel.Parcel) bool {
	return f(p)
}

// Prefix matches parcels whose kind starts with the given prefix.
type Prefix string

// Matches reports whether the parcel kind has the prefix.
func (pre Prefix) Matches(p parcel.Parcel) bool {
	return strings.HasPrefix(p.Kind(), string(pre))
}

// Regexp matches a regular expression against one field of the parcel. The
// field is looked up in the headers first and then in the message.
type Regexp struct {
	re    *regexp.Regexp
	field string
}

// NewRegexp compiles pattern into a matcher on field. An empty field means
// the parcel kind.
func NewRegexp(pattern, field string) (*Regexp, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile matcher %q: %w", pattern, err)
	}
	if field == "" {
		field = parcel.HeaderKind
	}
	return &Regexp{re: re, field: field}, nil
}

// MustRegexp is NewRegexp that panics on an invalid pattern.
func MustRegexp(pattern, field string) *Regexp {
	m, err := NewRegexp(pattern, field)
	if err != nil {
		panic(err)
	}
	return m
}

// Matches reports whether the configured field matches the expression.
func (r *Regexp) Matches(p parcel.Parcel) bool {
	value, ok := fieldValue(p, r.field)
	return ok && r.re.MatchString(value)
}

// String returns the expression and field.
func (r *Regexp) String() string {
	return r.field + "=~/" + r.re.String() + "/"
}

func fieldValue(p parcel.Parcel, field string) (string, bool) {
	if v := p.Headers.Get(field); v != "" {
		return v, true
	}
	v, ok := p.Message[field].(string)
	return v, ok
}
