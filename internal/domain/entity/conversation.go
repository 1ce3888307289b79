package entity

import "time"

// Conversation is the derived per-viewer summary of all messages
// exchanged with one counterpart. It is recomputed on demand from the
// message log and never stored.
type Conversation struct {
	UserID        string    `json:"userId"`
	UserName      string    `json:"userName"`
	UserEmail     string    `json:"userEmail,omitempty"`
	LastMessage   string    `json:"lastMessage"`
	LastTimestamp time.Time `json:"lastTimestamp"`
	Unread        int       `json:"unread"`
}
