package types

import "time"

type Event struct {
	Type    string         `json:"type"`
	Ts      time.Time      `json:"timestamp"`
	Payload map[string]any `json:"payload,omitempty"`
}

type Session struct {
	ID          string    `json:"session_id"`
	Voice       string    `json:"voice"`
	BridgeToken string    `json:"bridge_token"`
	CreatedAt   time.Time `json:"created_at"`
	Status      string    `json:"status"`

	BridgeAttached bool       `json:"bridge_attached"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
}

const (
	StatusActive = "active"
	StatusEnded  = "ended"
)
