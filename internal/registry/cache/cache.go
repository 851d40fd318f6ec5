// Package cache provides a Redis read-through decorator for registry
// clients. Only completed lookups are cached; provider errors never are.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"kyb/internal/identity/models"
	"kyb/internal/registry/metrics"
	"kyb/internal/registry/providers"
	pstrings "kyb/pkg/platform/strings"
)

const (
	keyPrefix  = "kyb:registry:"
	DefaultTTL = 15 * time.Minute
)

// Registry wraps a registry client. VIES answers are never cached since a
// VAT number's validity is the very thing being checked.
type Registry struct {
	inner   providers.IdentifierLookup
	client  redis.Cmdable
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Registry)

func WithTTL(ttl time.Duration) Option {
	return func(r *Registry) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

func New(inner providers.IdentifierLookup, client redis.Cmdable, opts ...Option) *Registry {
	r := &Registry{
		inner:  inner,
		client: client,
		ttl:    DefaultTTL,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) Source() providers.Source { return r.inner.Source() }

func (r *Registry) bypass() bool {
	return r.client == nil || r.inner.Source() == providers.SourceVIES
}

func (r *Registry) LookupByIdentifier(ctx context.Context, idType models.IdentifierType, value, countryCode string) (providers.Result, error) {
	if r.bypass() {
		return r.inner.LookupByIdentifier(ctx, idType, value, countryCode)
	}
	key := keyPrefix + string(r.inner.Source()) + ":id:" + string(idType) + ":" +
		strings.ToUpper(countryCode) + ":" + pstrings.Compact(value)
	return r.readThrough(ctx, key, func() (providers.Result, error) {
		return r.inner.LookupByIdentifier(ctx, idType, value, countryCode)
	})
}

// LookupByName delegates to the wrapped client when it supports name
// search and reports NotFound otherwise.
func (r *Registry) LookupByName(ctx context.Context, name, countryCode string) (providers.Result, error) {
	nl, ok := r.inner.(providers.NameLookup)
	if !ok {
		return providers.NotFound(), nil
	}
	if r.bypass() {
		return nl.LookupByName(ctx, name, countryCode)
	}
	key := keyPrefix + string(r.inner.Source()) + ":name:" +
		strings.ToUpper(countryCode) + ":" + pstrings.FoldName(name)
	return r.readThrough(ctx, key, func() (providers.Result, error) {
		return nl.LookupByName(ctx, name, countryCode)
	})
}

func (r *Registry) readThrough(ctx context.Context, key string, fetch func() (providers.Result, error)) (providers.Result, error) {
	source := string(r.inner.Source())

	if res, ok := r.get(ctx, key); ok {
		r.metrics.IncrementCacheHit(source)
		return res, nil
	}
	r.metrics.IncrementCacheMiss(source)

	res, err := fetch()
	if err != nil {
		return res, err
	}
	r.set(ctx, key, res)
	return res, nil
}

// Cache failures degrade to a direct lookup; they are logged and never
// surfaced to the caller.
func (r *Registry) get(ctx context.Context, key string) (providers.Result, bool) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return providers.Result{}, false
	}
	if err != nil {
		r.logger.WarnContext(ctx, "registry cache read failed", "key", key, "error", err)
		return providers.Result{}, false
	}
	var entry entry
	if err := json.Unmarshal(data, &entry); err != nil {
		r.logger.WarnContext(ctx, "registry cache entry corrupt", "key", key, "error", err)
		return providers.Result{}, false
	}
	return entry.result(), true
}

func (r *Registry) set(ctx context.Context, key string, res providers.Result) {
	data, err := json.Marshal(newEntry(res))
	if err != nil {
		r.logger.WarnContext(ctx, "registry cache encode failed", "key", key, "error", err)
		return
	}
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		r.logger.WarnContext(ctx, "registry cache write failed", "key", key, "error", err)
	}
}

// entry is the cached form of a Result. Record.Raw is excluded from the
// public JSON form, so it is carried alongside.
type entry struct {
	Kind       providers.Kind `json:"kind"`
	Record     *cachedRecord  `json:"record,omitempty"`
	Candidates []cachedRecord `json:"candidates,omitempty"`
}

type cachedRecord struct {
	providers.Record
	Raw json.RawMessage `json:"raw,omitempty"`
}

func newEntry(res providers.Result) entry {
	e := entry{Kind: res.Kind}
	if res.Record != nil {
		e.Record = &cachedRecord{Record: *res.Record, Raw: res.Record.Raw}
	}
	for _, c := range res.Candidates {
		e.Candidates = append(e.Candidates, cachedRecord{Record: c, Raw: c.Raw})
	}
	return e
}

func (e entry) result() providers.Result {
	res := providers.Result{Kind: e.Kind}
	if e.Record != nil {
		rec := e.Record.Record
		rec.Raw = e.Record.Raw
		res.Record = &rec
	}
	for _, c := range e.Candidates {
		rec := c.Record
		rec.Raw = c.Raw
		res.Candidates = append(res.Candidates, rec)
	}
	return res
}
