package models

import "time"

// Message roles after normalization.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one canonical conversation turn. Text is replaced in-place by
// the redactor; the original text never survives past that stage.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Ordinal   int       `json:"ordinal"`
}

// Conversation is an ordered message sequence from one archive.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Messages  []Message `json:"messages"`
}
