package notify

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kasir/internal/common"
	"github.com/noah-isme/backend-kasir/internal/db"
)

func TestNotifyPostsSignedEvent(t *testing.T) {
	var (
		gotSignature string
		gotTimestamp string
		gotEventID   string
		gotBody      []byte
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get("X-Signature")
		gotTimestamp = r.Header.Get("X-Timestamp")
		gotEventID = r.Header.Get("X-Event-ID")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	wh, err := NewWebhook(server.URL, "s3cret", time.Second)
	require.NoError(t, err)

	event := db.DomainEvent{
		ID:         common.NewUUID(),
		Topic:      "transaction.committed",
		Payload:    []byte(`{"number":"20260301-0001"}`),
		OccurredAt: time.Now(),
	}
	require.NoError(t, wh.Notify(context.Background(), event))
	require.Equal(t, common.UUIDString(event.ID), gotEventID)

	ts, err := strconv.ParseInt(gotTimestamp, 10, 64)
	require.NoError(t, err)
	require.Equal(t, ComputeSignature("s3cret", ts, gotEventID, gotBody), gotSignature)
}

func TestNotifyNon2xxIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	wh, err := NewWebhook(server.URL, "s3cret", time.Second)
	require.NoError(t, err)
	err = wh.Notify(context.Background(), db.DomainEvent{ID: common.NewUUID(), Topic: "stock.low", Payload: []byte(`{}`)})
	require.Error(t, err)
}

func TestNewWebhookRejectsRemoteHTTP(t *testing.T) {
	_, err := NewWebhook("http://example.com/hook", "s", time.Second)
	require.Error(t, err)
}
