// Package events fans task activity out to connected browsers. Events are
// published on a Redis channel per workspace so every API replica relays
// them to its own websocket clients.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
)

type Type string

const (
	TypeSubmission   Type = "submission"
	TypeTaskCreated  Type = "task_created"
	TypeTaskStatus   Type = "task_status"
	TypeMemberJoined Type = "member_joined"
)

type Event struct {
	ID          string         `json:"id"`
	Type        Type           `json:"type"`
	WorkspaceID string         `json:"workspace_id"`
	TaskID      string         `json:"task_id,omitempty"`
	Actor       string         `json:"actor,omitempty"`
	At          time.Time      `json:"at"`
	Payload     map[string]any `json:"payload,omitempty"`
}

func channel(workspaceID string) string {
	return "workspace-events:" + workspaceID
}

// Bus publishes events and serves websocket subscriptions.
type Bus struct {
	client   *redis.Client
	upgrader websocket.Upgrader
}

func NewBus(client *redis.Client, allowedOrigin string) *Bus {
	return &Bus{
		client: client,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return allowedOrigin == "*" || r.Header.Get("Origin") == "" || r.Header.Get("Origin") == allowedOrigin
			},
		},
	}
}

// Publish stamps the event with an id and time and sends it to the
// workspace channel.
func (b *Bus) Publish(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := b.client.Publish(ctx, channel(event.WorkspaceID), payload).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Serve upgrades the request and relays the workspace's events until the
// client disconnects.
func (b *Bus) Serve(w http.ResponseWriter, r *http.Request, workspaceID string) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	pubsub := b.client.Subscribe(ctx, channel(workspaceID))
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		http.Error(w, "event stream unavailable", http.StatusServiceUnavailable)
		return
	}

	ws, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("events: upgrade failed for workspace %s: %v", workspaceID, err)
		return
	}
	defer ws.Close()
	// the server's ReadTimeout deadline survives the hijack
	_ = ws.SetReadDeadline(time.Time{})

	// the read loop only exists to notice disconnects
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			_ = ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := ws.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				log.Printf("events: write to client failed: %v", err)
				return
			}
		}
	}
}

// Nop discards events; used when Redis is not configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

func (Nop) Serve(w http.ResponseWriter, _ *http.Request, _ string) {
	http.Error(w, "event stream not configured", http.StatusServiceUnavailable)
}
