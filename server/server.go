// Package server exposes the operational surface of the processing
// core: a status endpoint reporting the fallback budget monitor and
// queue depths, and a websocket stream of chunk-ready events for the
// vector-index collaborator.
package server

import (
	"context"
	"encoding/json"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"github.com/cadencehq/cadence/internal/models"
	"github.com/cadencehq/cadence/internal/types"
	"github.com/cadencehq/cadence/pkg/llm"
	"github.com/cadencehq/cadence/pkg/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Be careful with this in production
	},
}

type Config struct {
	Addr string
}

// writeWait bounds a single broadcast write so one stalled consumer
// cannot hold up the emit path indefinitely.
const writeWait = 10 * time.Second

// client is one subscribed websocket connection. The per-client mutex
// serializes writes to the connection; the server's registry lock is
// never held across network writes.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Server broadcasts chunk-ready events and serves processing status.
// It implements types.Emitter so the pipeline can hand it chunk sets
// directly after each successful finalize.
type Server struct {
	config Config
	store  *store.Store
	budget *llm.BudgetMonitor

	mu      sync.Mutex
	clients map[*client]bool

	entropyMu sync.Mutex
	entropy   *ulid.MonotonicEntropy
}

var _ types.Emitter = (*Server)(nil)

type statusResponse struct {
	Budget        llm.BudgetStatus `json:"budget"`
	FoiaPending   int              `json:"foia_pending"`
	ReviewPending int              `json:"review_pending"`
}

func NewServer(config Config, st *store.Store, budget *llm.BudgetMonitor) *Server {
	if config.Addr == "" {
		config.Addr = ":8090"
	}

	return &Server{
		config:  config,
		store:   st,
		budget:  budget,
		clients: make(map[*client]bool),
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

// Start blocks serving HTTP until the listener fails.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/events", s.handleEvents)

	log.Printf("status server listening on %s", s.config.Addr)
	return http.ListenAndServe(s.config.Addr, mux)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Budget: s.budget.Status()}

	if s.store != nil {
		foia, review, err := s.store.QueueDepths(r.Context())
		if err != nil {
			log.Printf("queue depth query failed: %v", err)
		} else {
			resp.FoiaPending = foia
			resp.ReviewPending = review
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("failed to write status: %v", err)
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	c := &client{conn: conn}

	s.mu.Lock()
	s.clients[c] = true
	s.mu.Unlock()

	// Reader loop only exists to detect disconnects.
	go func() {
		defer s.drop(c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) drop(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	c.conn.Close()
}

func (s *Server) nextEventID() string {
	s.entropyMu.Lock()
	defer s.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

// EmitChunks broadcasts one ordered chunk-ready event per chunk. Every
// event carries the chunk's complete frozen metadata; consumers never
// need to join back to the document. The subscriber set is snapshotted
// up front and writes happen outside the registry lock, so a slow
// consumer delays only its own writes, never registration or other
// emitters.
func (s *Server) EmitChunks(ctx context.Context, doc *models.Document, chunks []models.Chunk) error {
	s.mu.Lock()
	targets := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		targets = append(targets, c)
	}
	s.mu.Unlock()

	if len(targets) == 0 {
		return nil
	}

	for _, c := range chunks {
		event := models.ChunkEvent{
			EventID:    s.nextEventID(),
			ChunkID:    c.ID,
			DocumentID: c.DocumentID,
			Index:      c.Index,
			Text:       c.Text,
			TokenCount: c.TokenCount,
			Metadata:   c.Metadata,
		}

		payload, err := json.Marshal(event)
		if err != nil {
			return err
		}

		for _, target := range targets {
			if err := target.write(payload); err != nil {
				s.drop(target)
			}
		}
	}

	return nil
}
