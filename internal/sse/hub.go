package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ovationlabs/venuepulse-backend/internal/logger"
)

// LiveUpdate is the payload streamed to connected dashboards after each
// accepted submission.
type LiveUpdate struct {
	CurrentInside int       `json:"current_inside"`
	At            time.Time `json:"at"`
}

type Client struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	Outbound chan LiveUpdate
	done     chan struct{}
}

// OccupancyHub fans live totals out to every connected stream. There is one
// venue-wide feed, so clients need no channel subscriptions.
type OccupancyHub struct {
	mu      sync.RWMutex
	log     *logger.Logger
	clients map[*Client]bool
}

func NewOccupancyHub(log *logger.Logger) *OccupancyHub {
	return &OccupancyHub{
		log:     log.With("component", "OccupancyHub"),
		clients: make(map[*Client]bool),
	}
}

func (hub *OccupancyHub) NewClient(userID uuid.UUID) *Client {
	client := &Client{
		ID:       uuid.New(),
		UserID:   userID,
		Outbound: make(chan LiveUpdate, 10),
		done:     make(chan struct{}),
	}

	hub.mu.Lock()
	hub.clients[client] = true
	hub.mu.Unlock()

	hub.log.Debug("Live client connected", "clientID", client.ID, "userID", userID)
	return client
}

// Broadcast delivers the update to every connected client. Slow consumers
// with a full buffer drop the update rather than block the publisher.
func (hub *OccupancyHub) Broadcast(update LiveUpdate) {
	hub.mu.RLock()
	defer hub.mu.RUnlock()

	for client := range hub.clients {
		select {
		case client.Outbound <- update:
		default:
			hub.log.Warn("Dropping live update; outbound buffer full", "clientID", client.ID)
		}
	}
}

func (hub *OccupancyHub) ServeHTTP(w http.ResponseWriter, r *http.Request, client *Client) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported!", http.StatusInternalServerError)
		return
	}
	ctx := r.Context()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			hub.log.Debug("Live client context done", "clientID", client.ID, "err", ctx.Err())
			return
		case <-client.done:
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case update := <-client.Outbound:
			payload, err := json.Marshal(update)
			if err != nil {
				hub.log.Warn("Failed to marshal live update", "error", err)
				continue
			}
			_, _ = fmt.Fprintf(w, "event: occupancy\n")
			_, _ = fmt.Fprintf(w, "data: %s\n\n", string(payload))
			flusher.Flush()
		}
	}
}

func (hub *OccupancyHub) CloseClient(client *Client) {
	hub.mu.Lock()
	if _, ok := hub.clients[client]; !ok {
		hub.mu.Unlock()
		return
	}
	delete(hub.clients, client)
	hub.mu.Unlock()

	close(client.done)
	close(client.Outbound)
	hub.log.Debug("Live client disconnected", "clientID", client.ID)
}
