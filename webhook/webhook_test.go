package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliverSigned(t *testing.T) {
	var gotSig string
	var got Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotSig = r.Header.Get(SignatureHeader)
		assert.Equal(t, Sign("s3cret", body), gotSig)
		_ = json.Unmarshal(body, &got)
	}))
	defer srv.Close()

	ev := &Event{Type: EventRunCompleted, RunID: "run-1", Timestamp: 1, Data: map[string]int{"total": 3}}
	require.NoError(t, NewSender().Deliver(context.Background(), srv.URL, "s3cret", ev))
	assert.Contains(t, gotSig, "sha256=")
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, EventRunCompleted, got.Type)
}

func TestDeliverUnsigned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get(SignatureHeader))
	}))
	defer srv.Close()
	require.NoError(t, NewSender().Deliver(context.Background(), srv.URL, "", &Event{Type: EventRunCompleted}))
}

func TestDeliverWithRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	s := NewSender()
	s.delays = []time.Duration{0, time.Millisecond, time.Millisecond}
	assert.True(t, s.DeliverWithRetry(context.Background(), srv.URL, "", &Event{Type: EventRunCompleted}))
	assert.Equal(t, int32(3), calls.Load())

	calls.Store(-10)
	assert.False(t, s.DeliverWithRetry(context.Background(), srv.URL, "", &Event{Type: EventRunCompleted}))
}
