package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meshboardio/meshboard/server/store"
	"github.com/meshboardio/meshboard/server/types"
)

func seedWebhook(t *testing.T, s store.Store, projectID, url string, events []string, secret string) *types.Webhook {
	t.Helper()
	webhook := &types.Webhook{
		ID:        types.NewWebhookID(),
		ProjectID: projectID,
		URL:       url,
		Events:    events,
		Secret:    secret,
		Active:    true,
		CreatedBy: "seed",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.SaveWebhook(context.Background(), store.LockingStrengthUpdate, webhook))
	return webhook
}

func Test_DispatcherDeliversSignedPayload(t *testing.T) {
	testStore, cleanUp, err := store.NewTestStoreFromSQL(context.Background(), "", t.TempDir())
	require.NoError(t, err)
	t.Cleanup(cleanUp)

	var mu sync.Mutex
	var gotBody []byte
	var gotSignature string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		gotBody = body
		gotSignature = r.Header.Get(HookSignatureHeader)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	webhook := seedWebhook(t, testStore, "project-1", server.URL, []string{types.WebhookEventPostCreated}, "hook-secret")

	dispatcher := NewDispatcher(testStore, nil)
	dispatcher.retryInterval = 10 * time.Millisecond
	dispatcher.Dispatch(context.Background(), "project-1", types.WebhookEventPostCreated, map[string]any{"id": "post-1"})

	require.Eventually(t, func() bool {
		stored, err := testStore.GetWebhookByID(context.Background(), store.LockingStrengthShare, webhook.ID)
		return err == nil && stored.LastStatus == "success"
	}, 5*time.Second, 20*time.Millisecond)

	stored, err := testStore.GetWebhookByID(context.Background(), store.LockingStrengthShare, webhook.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastDeliveryAt)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, SignDeliveryBody("hook-secret", gotBody), gotSignature)

	var delivery DeliveryBody
	require.NoError(t, json.Unmarshal(gotBody, &delivery))
	require.Equal(t, types.WebhookEventPostCreated, delivery.Event)
	require.Equal(t, "project-1", delivery.ProjectID)
	payload, ok := delivery.Payload.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "post-1", payload["id"])
}

func Test_DispatcherRetriesOnFailure(t *testing.T) {
	testStore, cleanUp, err := store.NewTestStoreFromSQL(context.Background(), "", t.TempDir())
	require.NoError(t, err)
	t.Cleanup(cleanUp)

	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	webhook := seedWebhook(t, testStore, "project-1", server.URL, []string{types.WebhookEventPostCreated}, "")

	dispatcher := NewDispatcher(testStore, nil)
	dispatcher.retryInterval = 10 * time.Millisecond
	dispatcher.Dispatch(context.Background(), "project-1", types.WebhookEventPostCreated, map[string]any{"id": "post-1"})

	require.Eventually(t, func() bool {
		stored, err := testStore.GetWebhookByID(context.Background(), store.LockingStrengthShare, webhook.ID)
		return err == nil && strings.HasPrefix(stored.LastStatus, "error:")
	}, 5*time.Second, 20*time.Millisecond)

	require.Equal(t, int32(1+dispatchMaxRetries), attempts.Load())
}

func Test_DispatcherSkipsUnsubscribed(t *testing.T) {
	testStore, cleanUp, err := store.NewTestStoreFromSQL(context.Background(), "", t.TempDir())
	require.NoError(t, err)
	t.Cleanup(cleanUp)

	var subscribed, unsubscribed atomic.Int32
	subscribedServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subscribed.Add(1)
	}))
	t.Cleanup(subscribedServer.Close)
	unsubscribedServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		unsubscribed.Add(1)
	}))
	t.Cleanup(unsubscribedServer.Close)

	seedWebhook(t, testStore, "project-1", subscribedServer.URL, []string{types.WebhookEventPostCreated}, "")
	seedWebhook(t, testStore, "project-1", unsubscribedServer.URL, []string{types.WebhookEventCommentCreated}, "")
	inactive := seedWebhook(t, testStore, "project-1", unsubscribedServer.URL, []string{types.WebhookEventPostCreated}, "")
	inactive.Active = false
	require.NoError(t, testStore.SaveWebhook(context.Background(), store.LockingStrengthUpdate, inactive))

	dispatcher := NewDispatcher(testStore, nil)
	dispatcher.retryInterval = 10 * time.Millisecond
	dispatcher.Dispatch(context.Background(), "project-1", types.WebhookEventPostCreated, map[string]any{"id": "post-1"})

	require.Eventually(t, func() bool {
		return subscribed.Load() == 1
	}, 5*time.Second, 20*time.Millisecond)
	require.Equal(t, int32(0), unsubscribed.Load())
}
