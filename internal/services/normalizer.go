package services

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/convoscope/backend/internal/models"
)

// rawArchive mirrors the export format. Unknown or extra fields are
// ignored; both older (id/title/messages) and newer (uuid/name/
// chat_messages) field spellings are accepted.
type rawArchive struct {
	Conversations []rawConversation `json:"conversations"`
}

type rawConversation struct {
	ID           string       `json:"id"`
	UUID         string       `json:"uuid"`
	Title        string       `json:"title"`
	Name         string       `json:"name"`
	CreatedAt    string       `json:"created_at"`
	UpdatedAt    string       `json:"updated_at"`
	Messages     []rawMessage `json:"messages"`
	ChatMessages []rawMessage `json:"chat_messages"`
}

type rawMessage struct {
	ID        string `json:"id"`
	UUID      string `json:"uuid"`
	Role      string `json:"role"`
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
	Timestamp string `json:"timestamp"`
}

// NormalizeStats reports what the normalizer skipped. Skips are counted,
// never fatal.
type NormalizeStats struct {
	SkippedConversations int
	SkippedMessages      int
}

// Normalizer converts raw archive bytes into ordered canonical
// conversations.
type Normalizer struct{}

func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Normalize parses the archive and returns conversations with messages
// sorted by timestamp, original ordinal breaking ties. Conversations with
// no usable messages are dropped and counted. A structurally unusable
// archive returns MalformedArchiveError.
func (n *Normalizer) Normalize(data []byte) ([]models.Conversation, NormalizeStats, error) {
	var stats NormalizeStats

	var root map[string]json.RawMessage
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, stats, &MalformedArchiveError{Reason: "root must be a JSON object"}
	}
	rawConvs, ok := root["conversations"]
	if !ok {
		return nil, stats, &MalformedArchiveError{Reason: "missing 'conversations' field"}
	}

	var archive rawArchive
	if err := json.Unmarshal(rawConvs, &archive.Conversations); err != nil {
		return nil, stats, &MalformedArchiveError{Reason: "'conversations' must be an array"}
	}

	conversations := make([]models.Conversation, 0, len(archive.Conversations))
	for i, rc := range archive.Conversations {
		rawMsgs := rc.Messages
		if rawMsgs == nil {
			rawMsgs = rc.ChatMessages
		}
		if rawMsgs == nil {
			return nil, stats, &MalformedArchiveError{
				Reason: "conversation " + strconv.Itoa(i) + " lacks a message list",
			}
		}

		conv := models.Conversation{
			ID:        firstNonEmpty(rc.ID, rc.UUID, "conv-"+strconv.Itoa(i)),
			Title:     firstNonEmpty(rc.Title, rc.Name),
			CreatedAt: parseTimestamp(rc.CreatedAt),
			UpdatedAt: parseTimestamp(rc.UpdatedAt),
		}

		for j, rm := range rawMsgs {
			role, ok := normalizeRole(firstNonEmpty(rm.Role, rm.Sender))
			if !ok {
				stats.SkippedMessages++
				continue
			}
			text := firstNonEmpty(rm.Text, rm.Content)
			if strings.TrimSpace(text) == "" {
				stats.SkippedMessages++
				continue
			}
			conv.Messages = append(conv.Messages, models.Message{
				ID:        firstNonEmpty(rm.ID, rm.UUID, conv.ID+"-"+strconv.Itoa(j)),
				Role:      role,
				Text:      text,
				Timestamp: parseTimestamp(firstNonEmpty(rm.CreatedAt, rm.Timestamp)),
				Ordinal:   j,
			})
		}

		if len(conv.Messages) == 0 {
			stats.SkippedConversations++
			continue
		}

		sort.SliceStable(conv.Messages, func(a, b int) bool {
			ma, mb := conv.Messages[a], conv.Messages[b]
			if !ma.Timestamp.Equal(mb.Timestamp) {
				return ma.Timestamp.Before(mb.Timestamp)
			}
			return ma.Ordinal < mb.Ordinal
		})

		conversations = append(conversations, conv)
	}

	return conversations, stats, nil
}

func normalizeRole(role string) (string, bool) {
	switch strings.ToLower(role) {
	case "user", "human":
		return models.RoleUser, true
	case "assistant":
		return models.RoleAssistant, true
	default:
		// tool/system rows in newer exports carry no user content
		return "", false
	}
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Unix(int64(secs), 0).UTC()
	}
	return time.Time{}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
