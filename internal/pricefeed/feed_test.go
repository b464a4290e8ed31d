package pricefeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const body = `{"proofs":{
	"xrd":{"message":"xrd-usd|0.02|1740830400","signature":"3045"},
	"xeth":{"message":"eth-usd|3000|1740830400","signature":"3046"}
}}`

func newTestFeed(url string, denoms ...string) *Feed {
	f := NewFeed(url, "secret", denoms)
	f.backoff = time.Millisecond
	return f
}

func TestPriceProofs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Write([]byte(body))
	}))
	defer srv.Close()

	proofs, err := newTestFeed(srv.URL).PriceProofs(context.Background())
	require.NoError(t, err)
	assert.Len(t, proofs, 2)
	assert.Equal(t, "xrd-usd|0.02|1740830400", proofs["xrd"].Message)
}

func TestPriceProofsKeepsRequestedDenoms(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	proofs, err := newTestFeed(srv.URL, "xrd").PriceProofs(context.Background())
	require.NoError(t, err)
	assert.Len(t, proofs, 1)
	_, ok := proofs.Lookup("xrd")
	assert.True(t, ok)

	_, err = newTestFeed(srv.URL, "xbtc").PriceProofs(context.Background())
	assert.ErrorIs(t, err, ErrInvalidProof)
}

func TestPriceProofsRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(body))
	}))
	defer srv.Close()

	_, err := newTestFeed(srv.URL).PriceProofs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestPriceProofsGivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestFeed(srv.URL).PriceProofs(context.Background())
	assert.ErrorIs(t, err, ErrFeedUnavailable)
	assert.Equal(t, int32(MAX_RETRIES), calls.Load())
}

func TestPriceProofsRejectsBadPayloads(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		payload string
	}{
		{"client error", http.StatusUnauthorized, `denied`},
		{"not json", http.StatusOK, `<html>`},
		{"missing signature", http.StatusOK, `{"proofs":{"xrd":{"message":"xrd-usd|0.02|1"}}}`},
		{"malformed message", http.StatusOK, `{"proofs":{"xrd":{"message":"0.02","signature":"30"}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.payload))
			}))
			defer srv.Close()

			_, err := newTestFeed(srv.URL).PriceProofs(context.Background())
			assert.Error(t, err)
			assert.Equal(t, int32(1), calls.Load(), "permanent failures are not retried")
		})
	}
}
