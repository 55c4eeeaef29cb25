package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadencehq/cadence/internal/models"
	"github.com/cadencehq/cadence/pkg/llm"
)

func testServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	budget := llm.NewBudgetMonitor(llm.BudgetConfig{})
	budget.Record(true)
	budget.Record(false)

	s := NewServer(Config{}, nil, budget)

	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/events", s.handleEvents)

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return s, ts
}

func testChunks(t *testing.T) []models.Chunk {
	t.Helper()

	doc := &models.Document{
		ID:           "doc-1",
		AgencyID:     "example_pd",
		DocumentType: models.TypePressRelease,
		PublishedAt:  time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		CADNumbers:   []string{"23-0045123"},
		CaseNumbers:  []string{},
		FOIAEligible: true,
	}

	var chunks []models.Chunk
	for i, text := range []string{"first chunk", "second chunk", "third chunk"} {
		chunk, err := models.NewChunk(doc, i, text, 2)
		require.NoError(t, err)
		chunks = append(chunks, chunk)
	}
	return chunks
}

func TestHandleStatus(t *testing.T) {
	_, ts := testServer(t)

	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var status statusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.InDelta(t, 0.5, status.Budget.Ratio, 1e-9)
	assert.Equal(t, 0, status.FoiaPending)
}

func TestEmitChunks_Broadcast(t *testing.T) {
	s, ts := testServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/events"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	// Registration races the dial returning; give the handler a beat.
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.clients) == 1
	}, time.Second, 10*time.Millisecond)

	chunks := testChunks(t)
	doc := &models.Document{ID: "doc-1"}
	require.NoError(t, s.EmitChunks(context.Background(), doc, chunks))

	var lastEventID string
	for i := 0; i < len(chunks); i++ {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, payload, err := conn.ReadMessage()
		require.NoError(t, err)

		var event models.ChunkEvent
		require.NoError(t, json.Unmarshal(payload, &event))

		assert.Equal(t, i, event.Index, "events arrive in chunk order")
		assert.Equal(t, chunks[i].ID, event.ChunkID)
		assert.Equal(t, "doc-1", event.DocumentID)
		assert.Equal(t, "example_pd", event.Metadata.AgencyID)
		assert.True(t, event.Metadata.FOIAEligible)

		assert.Len(t, event.EventID, 26)
		assert.Greater(t, event.EventID, lastEventID, "ULIDs sort by emission order")
		lastEventID = event.EventID
	}
}

func TestEmitChunks_DropsDeadConnection(t *testing.T) {
	s, ts := testServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/events"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.clients) == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())

	chunks := testChunks(t)
	doc := &models.Document{ID: "doc-1"}
	require.Eventually(t, func() bool {
		require.NoError(t, s.EmitChunks(context.Background(), doc, chunks))
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.clients) == 0
	}, 2*time.Second, 20*time.Millisecond, "writes to a closed connection must evict the client")
}

func TestEmitChunks_NoSubscribers(t *testing.T) {
	s := NewServer(Config{}, nil, llm.NewBudgetMonitor(llm.BudgetConfig{}))

	assert.NoError(t, s.EmitChunks(context.Background(), &models.Document{ID: "doc-1"}, testChunks(t)))
}
