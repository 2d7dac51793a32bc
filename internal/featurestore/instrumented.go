package featurestore

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// Instrumented counts lookup outcomes (hit, miss, error) of the wrapped store.
type Instrumented struct {
	Store
	lookups *prometheus.CounterVec
}

// WithMetrics wraps s so every lookup increments lookups with a "result"
// label. A nil counter returns s unchanged.
func WithMetrics(s Store, lookups *prometheus.CounterVec) Store {
	if lookups == nil {
		return s
	}
	return &Instrumented{Store: s, lookups: lookups}
}

func (i *Instrumented) Lookup(ctx context.Context, q Query) (Row, bool, error) {
	row, found, err := i.Store.Lookup(ctx, q)
	switch {
	case err != nil:
		i.lookups.WithLabelValues("error").Inc()
	case found:
		i.lookups.WithLabelValues("hit").Inc()
	default:
		i.lookups.WithLabelValues("miss").Inc()
	}
	return row, found, err
}

// Ping forwards to the wrapped store when it supports probing.
func (i *Instrumented) Ping(ctx context.Context) error {
	if p, ok := i.Store.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
