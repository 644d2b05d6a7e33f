package lifecycle

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
)

// ErrDraining is reported by readiness once shutdown has begun.
var ErrDraining = errors.New("shutting down")

// ReadinessCheck reports whether dependencies are usable.
type ReadinessCheck interface {
	Handler() http.Handler
}

// Probes exposes liveness and readiness endpoints. Readiness fails as soon
// as Drain is called so load balancers stop routing trigger requests.
type Probes struct {
	draining atomic.Bool
	ready    ReadinessCheck
}

// NewProbes creates Probes backed by the given dependency check; ready may be nil.
func NewProbes(ready ReadinessCheck) *Probes {
	return &Probes{ready: ready}
}

// Drain marks the process as shutting down.
func (p *Probes) Drain(context.Context) error {
	p.draining.Store(true)
	return nil
}

// Liveness always answers 200 while the process can serve HTTP.
func (p *Probes) Liveness() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

// Readiness answers 503 while draining and otherwise delegates to the dependency check.
func (p *Probes) Readiness() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p.draining.Load() {
			http.Error(w, ErrDraining.Error(), http.StatusServiceUnavailable)
			return
		}
		if p.ready == nil {
			w.WriteHeader(http.StatusOK)
			return
		}
		p.ready.Handler().ServeHTTP(w, r)
	})
}
