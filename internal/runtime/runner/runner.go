// Package runner executes matched endpoints against a parcel, either inline
// or on a background worker pool.
package runner

import (
	"context"

	"github.com/drblury/parcelflow/internal/runtime/parcel"
	"github.com/drblury/parcelflow/internal/runtime/routing"
)

// Runner executes endpoints for a parcel and returns the produced parcels.
// Error parcels are part of the result; the returned error is reserved for
// faults of the runner itself.
type Runner interface {
	Run(ctx context.Context, endpoints []routing.Endpoint, p parcel.Parcel) ([]parcel.Parcel, error)
}

// Func adapts a function to the Runner interface.
type Func func(ctx context.Context, endpoints []routing.Endpoint, p parcel.Parcel) ([]parcel.Parcel, error)

// Run calls f.
func (f Func) Run(ctx context.Context, endpoints []routing.Endpoint, p parcel.Parcel) ([]parcel.Parcel, error) {
	return f(ctx, endpoints, p)
}
