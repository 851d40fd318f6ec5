package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"kyb/internal/derivation"
	"kyb/internal/enrichment/service"
	"kyb/internal/extraction"
	"kyb/internal/platform/config"
	"kyb/internal/platform/kafka"
	"kyb/internal/platform/redis"
	"kyb/internal/registry/cache"
	registrymetrics "kyb/internal/registry/metrics"
	"kyb/internal/registry/providers"
	"kyb/internal/registry/providers/gleif"
	"kyb/internal/registry/providers/kvk"
	"kyb/internal/registry/providers/peppol"
	"kyb/internal/registry/providers/vies"
	"kyb/pkg/platform/audit"
	"kyb/pkg/platform/audit/outbox"
	"kyb/pkg/platform/audit/publisher"
	auditmemory "kyb/pkg/platform/audit/store/memory"
	auditpostgres "kyb/pkg/platform/audit/store/postgres"
	"kyb/pkg/platform/circuit"
)

// buildRegistries layers each authority client as
// http client (timeout, breaker) -> metrics -> redis cache.
func buildRegistries(cfg config.Config, redisClient *redis.Client, log *slog.Logger) (service.Registries, *derivation.Engine) {
	m := registrymetrics.New()
	rc := cfg.Registry

	opts := func(source providers.Source) []providers.ClientOption {
		return []providers.ClientOption{
			providers.WithTimeout(rc.CallTimeout),
			providers.WithBreaker(circuit.New(source.String())),
			providers.WithBreakerObserver(m),
		}
	}
	wrap := func(inner providers.IdentifierLookup) providers.IdentifierLookup {
		instrumented := registrymetrics.Instrument(inner, m)
		if redisClient == nil {
			return instrumented
		}
		return cache.New(instrumented, redisClient.Client,
			cache.WithTTL(rc.CacheTTL),
			cache.WithLogger(log),
			cache.WithMetrics(m),
		)
	}

	registries := service.Registries{
		Company: map[string]providers.IdentifierLookup{
			"NL": wrap(kvk.New(rc.KVKBaseURL, rc.KVKAPIKey, opts(providers.SourceKVK)...)),
		},
		LEI:      wrap(gleif.New(rc.GLEIFURL, opts(providers.SourceGLEIF)...)),
		EInvoice: wrap(peppol.New(rc.PeppolURL, opts(providers.SourcePeppol)...)),
	}
	// VAT validity is never cached.
	viesClient := registrymetrics.Instrument(vies.New(rc.VIESURL, opts(providers.SourceVIES)...), m)
	return registries, derivation.New(viesClient)
}

func buildExtractor(cfg config.Config, log *slog.Logger) (*extraction.Extractor, error) {
	var engine extraction.Engine
	if cfg.LLM.APIKey != "" || cfg.LLM.BaseURL != "" {
		engine = extraction.NewLLMEngine(cfg.LLM.APIKey, cfg.LLM.BaseURL, extraction.WithModel(cfg.LLM.Model))
	} else {
		if cfg.Server.IsProduction() {
			return nil, errors.New("LLM_API_KEY or LLM_BASE_URL is required in production")
		}
		log.Warn("no extraction model configured, documents yield no facts")
		engine = &extraction.StaticEngine{}
	}
	return extraction.New(engine, extraction.WithLogger(log))
}

// buildAudit returns the audit publisher and a close func that drains it.
// With a database, events go to the outbox table; with Kafka brokers as
// well, a relay forwards the outbox to the audit topic.
func buildAudit(ctx context.Context, cfg config.Config, db *sql.DB, log *slog.Logger) (*publisher.Publisher, func(), error) {
	var store audit.Store = auditmemory.NewInMemoryStore()
	if db != nil {
		store = auditpostgres.New(db)
	}
	pub := publisher.NewPublisher(store,
		publisher.WithAsyncBuffer(1024),
		publisher.WithLogger(log),
	)

	if db == nil || len(cfg.Kafka.Brokers) == 0 {
		return pub, func() { _ = pub.Close() }, nil
	}

	client, err := kafka.New(cfg.Kafka.Brokers)
	if err != nil {
		_ = pub.Close()
		return nil, nil, err
	}
	if err := kafka.EnsureTopic(ctx, client, cfg.Kafka.AuditTopic, 3, 1); err != nil {
		client.Close()
		_ = pub.Close()
		return nil, nil, fmt.Errorf("ensure audit topic: %w", err)
	}

	relay := outbox.NewRelay(db, kafka.NewProducer(client), cfg.Kafka.AuditTopic, outbox.WithLogger(log))
	relayCtx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := relay.Run(relayCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("audit relay stopped", "error", err)
		}
	}()
	log.Info("audit relay started", "topic", cfg.Kafka.AuditTopic)

	return pub, func() {
		_ = pub.Close()
		cancel()
		wg.Wait()
		client.Close()
	}, nil
}
