package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kyb/pkg/platform/circuit"
)

func TestResolveByName(t *testing.T) {
	acme := Record{LegalName: "ACME Holding B.V.", RegistrationNumber: "1"}
	acmeTrading := Record{LegalName: "Acme Trading B.V.", RegistrationNumber: "2"}

	t.Run("no candidates is not found", func(t *testing.T) {
		assert.Equal(t, KindNotFound, ResolveByName("acme", nil).Kind)
	})

	t.Run("single normalized exact match is found", func(t *testing.T) {
		res := ResolveByName("Acme holding BV", []Record{acme, acmeTrading})
		require.True(t, res.IsFound())
		assert.Equal(t, "1", res.Record.RegistrationNumber)
	})

	t.Run("no exact match returns every candidate", func(t *testing.T) {
		res := ResolveByName("Acme", []Record{acme, acmeTrading})
		assert.Equal(t, KindMultipleMatches, res.Kind)
		assert.Len(t, res.Candidates, 2)
	})

	t.Run("two exact matches is ambiguous", func(t *testing.T) {
		dup := acme
		dup.RegistrationNumber = "3"
		res := ResolveByName("acme holding b.v.", []Record{acme, dup})
		assert.Equal(t, KindMultipleMatches, res.Kind)
	})
}

func TestClassifyStatus(t *testing.T) {
	assert.Equal(t, ErrorAuthentication, ClassifyStatus(SourceKVK, 401).Category)
	assert.Equal(t, ErrorRateLimited, ClassifyStatus(SourceKVK, 429).Category)
	assert.Equal(t, ErrorProviderOutage, ClassifyStatus(SourceKVK, 503).Category)
	assert.Equal(t, ErrorBadData, ClassifyStatus(SourceKVK, 400).Category)
	assert.True(t, IsRetryable(ClassifyStatus(SourceKVK, 503)))
	assert.False(t, IsRetryable(ClassifyStatus(SourceKVK, 400)))
}

func TestClassifyTransport(t *testing.T) {
	assert.Equal(t, ErrorTimeout, ClassifyTransport(SourceVIES, context.DeadlineExceeded).Category)
	assert.Equal(t, ErrorProviderOutage, ClassifyTransport(SourceVIES, errors.New("connection refused")).Category)
	assert.Equal(t, ErrorInternal, GetCategory(errors.New("plain")))
}

func TestHTTPClient_Get(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("apikey"))
		assert.Equal(t, "x y", r.URL.Query().Get("naam"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(SourceKVK, srv.URL+"/", WithHeader("apikey", "secret"))
	resp, err := c.Get(context.Background(), "/v2/zoeken", url.Values{"naam": {"x y"}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Body))
}

func TestHTTPClient_TimeoutIsCategorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	c := NewHTTPClient(SourceGLEIF, srv.URL, WithTimeout(20*time.Millisecond))
	_, err := c.Get(context.Background(), "/slow", nil)
	require.Error(t, err)
	assert.Equal(t, ErrorTimeout, GetCategory(err))
}

type transitions []string

func (tr *transitions) IncrementBreakerTransition(source string, state circuit.State) {
	*tr = append(*tr, source+":"+string(state))
}

func TestHTTPClient_BreakerOpensOnOutage(t *testing.T) {
	calls := 0
	status := http.StatusServiceUnavailable
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(status)
	}))
	defer srv.Close()

	now := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	b := circuit.New("peppol",
		circuit.WithFailureThreshold(2),
		circuit.WithCooldown(time.Minute),
		circuit.WithClock(func() time.Time { return now }),
	)
	var seen transitions
	c := NewHTTPClient(SourcePeppol, srv.URL, WithBreaker(b), WithBreakerObserver(&seen))

	for range 2 {
		resp, err := c.Get(context.Background(), "/", nil)
		require.NoError(t, err)
		assert.Equal(t, http.StatusServiceUnavailable, resp.Status)
	}
	_, err := c.Get(context.Background(), "/", nil)
	require.Error(t, err)
	assert.Equal(t, ErrorProviderOutage, GetCategory(err))
	assert.Equal(t, 2, calls)
	assert.Equal(t, transitions{"peppol:open"}, seen)

	status = http.StatusOK
	now = now.Add(2 * time.Minute)
	resp, err := c.Get(context.Background(), "/", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, transitions{"peppol:open", "peppol:closed"}, seen)
	assert.Equal(t, circuit.StateClosed, b.State())
}
