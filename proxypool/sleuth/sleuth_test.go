package sleuth

import (
	"context"
	"testing"
	"time"

	"proxyward/proxypool/model"
)

func TestLookupUsesCacheWithoutNetworkCall(t *testing.T) {
	s := New(time.Second)
	s.cache["198.51.100.4"] = &model.Metadata{
		Country: "China",
		City:    "Beijing",
		ASN:     "AS4808",
	}

	got, err := s.Lookup(context.Background(), "198.51.100.4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Country != "China" || got.ASN != "AS4808" {
		t.Errorf("expected cached lookup returned verbatim, got %+v", got)
	}
}

func TestErrorUnwrap(t *testing.T) {
	inner := context.DeadlineExceeded
	err := &Error{Kind: APIError, Err: inner}
	if err.Unwrap() != inner {
		t.Errorf("expected Unwrap to return the wrapped error")
	}
	if err.Error() == "" {
		t.Error("expected a non-empty error message")
	}
}
