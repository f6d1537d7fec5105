// Package policy implements the pre-execution guards that may veto a route.
package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/drblury/parcelflow/internal/runtime/parcel"
)

// ErrPolicyFailure matches every Failure with errors.Is.
var ErrPolicyFailure = errors.New("parcelflow: policy failure")

// Failure is the error a policy returns to veto execution.
type Failure struct {
	Policy string
	Reason string
	Cause  error
}

// Fail builds a Failure with the given reason.
func Fail(reason string) *Failure {
	return &Failure{Reason: reason}
}

// Failf builds a Failure with a formatted reason.
func Failf(format string, args ...any) *Failure {
	return &Failure{Reason: fmt.Sprintf(format, args...)}
}

func (f *Failure) Error() string {
	msg := "parcelflow: policy failure"
	if f.Policy != "" {
		msg += " (" + f.Policy + ")"
	}
	if f.Reason != "" {
		msg += ": " + f.Reason
	}
	if f.Cause != nil {
		msg += ": " + f.Cause.Error()
	}
	return msg
}

func (f *Failure) Unwrap() error {
	return f.Cause
}

func (f *Failure) Is(target error) bool {
	return target == ErrPolicyFailure
}

// Policy checks a parcel before its route executes. A non-nil error vetoes
// the route.
type Policy interface {
	Check(ctx context.Context, p parcel.Parcel) error
}

// Func adapts a function to the Policy interface.
type Func func(ctx context.Context, p parcel.Parcel) error

// Check calls f.
func (f Func) Check(ctx context.Context, p parcel.Parcel) error {
	return f(ctx, p)
}

// Chain is an ordered list of policies.
type Chain []Policy

// Check runs CheckAll over the chain.
func (c Chain) Check(ctx context.Context, p parcel.Parcel) error {
	return CheckAll(ctx, c, p)
}

// CheckAll invokes each policy in order and returns the first failure.
// Remaining policies are not consulted once one fails. Errors that are not a
// *Failure are wrapped into one so callers can rely on ErrPolicyFailure.
func CheckAll(ctx context.Context, chain []Policy, p parcel.Parcel) error {
	for i, pol := range chain {
		if pol == nil {
			continue
		}
		if err := pol.Check(ctx, p); err != nil {
			var failure *Failure
			if errors.As(err, &failure) {
				return err
			}
			return &Failure{Policy: fmt.Sprintf("%T#%d", pol, i), Cause: err}
		}
	}
	return nil
}

// RequireKind is a policy that only lets parcels of the given kinds through.
func RequireKind(kinds ...string) Policy {
	allowed := make(map[string]struct{}, len(kinds))
	for _, k := range kinds {
		allowed[k] = struct{}{}
	}
	return Func(func(_ context.Context, p parcel.Parcel) error {
		if _, ok := allowed[p.Kind()]; ok {
			return nil
		}
		return &Failure{Policy: "require_kind", Reason: fmt.Sprintf("kind %q is not allowed", p.Kind())}
	})
}

// RequireMessageKeys is a policy that rejects messages missing any of keys.
func RequireMessageKeys(keys ...string) Policy {
	return Func(func(_ context.Context, p parcel.Parcel) error {
		for _, key := range keys {
			if _, ok := p.Message[key]; !ok {
				return &Failure{Policy: "require_message_keys", Reason: fmt.Sprintf("missing %q", key)}
			}
		}
		return nil
	})
}
