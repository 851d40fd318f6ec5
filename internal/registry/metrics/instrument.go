package metrics

import (
	"context"
	"time"

	"kyb/internal/identity/models"
	"kyb/internal/registry/providers"
)

// Instrumented records latency and error categories around a registry
// client. It forwards name searches when the client supports them.
type Instrumented struct {
	inner   providers.IdentifierLookup
	metrics *Metrics
}

func Instrument(inner providers.IdentifierLookup, m *Metrics) *Instrumented {
	return &Instrumented{inner: inner, metrics: m}
}

func (i *Instrumented) Source() providers.Source { return i.inner.Source() }

func (i *Instrumented) LookupByIdentifier(ctx context.Context, idType models.IdentifierType, value, countryCode string) (providers.Result, error) {
	start := time.Now()
	res, err := i.inner.LookupByIdentifier(ctx, idType, value, countryCode)
	i.observe(start, res, err)
	return res, err
}

func (i *Instrumented) LookupByName(ctx context.Context, name, countryCode string) (providers.Result, error) {
	named, ok := i.inner.(providers.NameLookup)
	if !ok {
		return providers.NotFound(), nil
	}
	start := time.Now()
	res, err := named.LookupByName(ctx, name, countryCode)
	i.observe(start, res, err)
	return res, err
}

func (i *Instrumented) observe(start time.Time, res providers.Result, err error) {
	source := i.inner.Source().String()
	outcome := string(res.Kind)
	if err != nil {
		outcome = "error"
		i.metrics.IncrementError(source, string(providers.GetCategory(err)))
	}
	i.metrics.ObserveLookup(source, outcome, time.Since(start))
}
