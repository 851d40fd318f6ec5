// Package contract holds reusable tests that every registry client must
// pass against a stubbed authority.
package contract

import (
	"context"
	"testing"

	"kyb/internal/identity/models"
	"kyb/internal/registry/providers"
)

// LookupCase is one identifier lookup and its expected outcome.
type LookupCase struct {
	Name         string
	Type         models.IdentifierType
	Value        string
	Country      string
	ExpectedKind providers.Kind
	ValidateFunc func(t *testing.T, res providers.Result)
}

// Suite runs the shared client contract.
type Suite struct {
	Client providers.IdentifierLookup
	Cases  []LookupCase
}

func (s *Suite) Run(t *testing.T) {
	t.Helper()
	for _, tc := range s.Cases {
		t.Run(tc.Name, func(t *testing.T) {
			res, err := s.Client.LookupByIdentifier(context.Background(), tc.Type, tc.Value, tc.Country)
			if err != nil {
				t.Fatalf("lookup failed: %v", err)
			}
			if res.Kind != tc.ExpectedKind {
				t.Fatalf("expected kind %s, got %s", tc.ExpectedKind, res.Kind)
			}
			if res.Kind == providers.KindFound {
				if res.Record == nil {
					t.Fatal("found result without record")
				}
				if res.Record.Source != s.Client.Source() {
					t.Errorf("expected source %s, got %s", s.Client.Source(), res.Record.Source)
				}
				if len(res.Record.Raw) == 0 {
					t.Error("found record has no raw payload")
				}
			}
			if res.Kind != providers.KindFound && res.Record != nil {
				t.Errorf("%s result carries a record", res.Kind)
			}
			if tc.ValidateFunc != nil {
				tc.ValidateFunc(t, res)
			}
		})
	}
}

// ErrorCase asserts a lookup fails with a categorized ProviderError.
type ErrorCase struct {
	Name          string
	Client        providers.IdentifierLookup
	Type          models.IdentifierType
	Value         string
	Country       string
	ExpectedError providers.ErrorCategory
	ExpectedRetry bool
}

func (ec *ErrorCase) Run(t *testing.T) {
	t.Helper()
	t.Run(ec.Name, func(t *testing.T) {
		_, err := ec.Client.LookupByIdentifier(context.Background(), ec.Type, ec.Value, ec.Country)
		if err == nil {
			t.Fatal("expected error but got none")
		}
		if category := providers.GetCategory(err); category != ec.ExpectedError {
			t.Errorf("expected error category %s, got %s", ec.ExpectedError, category)
		}
		if retry := providers.IsRetryable(err); retry != ec.ExpectedRetry {
			t.Errorf("expected retryable=%v, got %v", ec.ExpectedRetry, retry)
		}
	})
}
