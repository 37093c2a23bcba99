package services

import (
	"errors"
	"testing"
)

func TestNormalizeRejectsBadStructure(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `this is not json`},
		{"root is array", `[{"conversations": []}]`},
		{"missing conversations", `{"exported_at": "2025-01-01"}`},
		{"conversations not array", `{"conversations": {"a": 1}}`},
		{"conversation without message list", `{"conversations": [{"id": "c1", "title": "t"}]}`},
	}

	n := NewNormalizer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := n.Normalize([]byte(tt.data))
			if err == nil {
				t.Fatal("expected an error")
			}
			var malformed *MalformedArchiveError
			if !errors.As(err, &malformed) {
				t.Errorf("expected MalformedArchiveError, got %T: %v", err, err)
			}
		})
	}
}

func TestNormalizeAcceptsBothFieldSpellings(t *testing.T) {
	data := `{"conversations": [
		{"uuid": "c1", "name": "older export", "chat_messages": [
			{"uuid": "m1", "sender": "human", "text": "hello", "created_at": "2025-03-01T10:00:00Z"},
			{"uuid": "m2", "sender": "assistant", "text": "hi there", "created_at": "2025-03-01T10:00:05Z"}
		]},
		{"id": "c2", "title": "newer export", "messages": [
			{"id": "m3", "role": "user", "content": "question", "timestamp": "2025-03-02T09:00:00Z"}
		]}
	]}`

	convs, stats, err := NewNormalizer().Normalize([]byte(data))
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(convs))
	}
	if convs[0].ID != "c1" || convs[0].Title != "older export" {
		t.Errorf("unexpected first conversation: %+v", convs[0])
	}
	if convs[0].Messages[0].Role != "user" {
		t.Errorf("expected human to normalize to user, got %q", convs[0].Messages[0].Role)
	}
	if stats.SkippedMessages != 0 || stats.SkippedConversations != 0 {
		t.Errorf("unexpected skips: %+v", stats)
	}
}

func TestNormalizeSkipsUnusableMessages(t *testing.T) {
	data := `{"conversations": [
		{"id": "c1", "messages": [
			{"id": "m1", "role": "user", "text": "keep me", "created_at": "2025-03-01T10:00:00Z"},
			{"id": "m2", "role": "system", "text": "drop by role"},
			{"id": "m3", "role": "user", "text": "   "},
			{"id": "m4", "role": "tool", "text": "drop too"}
		]},
		{"id": "c2", "messages": [
			{"id": "m5", "role": "system", "text": "only unusable rows"}
		]}
	]}`

	convs, stats, err := NewNormalizer().Normalize([]byte(data))
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(convs) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(convs))
	}
	if len(convs[0].Messages) != 1 || convs[0].Messages[0].ID != "m1" {
		t.Errorf("unexpected messages: %+v", convs[0].Messages)
	}
	if stats.SkippedMessages != 4 {
		t.Errorf("expected 4 skipped messages, got %d", stats.SkippedMessages)
	}
	if stats.SkippedConversations != 1 {
		t.Errorf("expected 1 skipped conversation, got %d", stats.SkippedConversations)
	}
}

func TestNormalizeSortsByTimestampThenOrdinal(t *testing.T) {
	data := `{"conversations": [
		{"id": "c1", "messages": [
			{"id": "late", "role": "user", "text": "b", "created_at": "2025-03-01T12:00:00Z"},
			{"id": "early", "role": "user", "text": "a", "created_at": "2025-03-01T08:00:00Z"},
			{"id": "tie-first", "role": "user", "text": "c", "created_at": "2025-03-01T08:00:00Z"}
		]}
	]}`

	convs, _, err := NewNormalizer().Normalize([]byte(data))
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	got := []string{}
	for _, m := range convs[0].Messages {
		got = append(got, m.ID)
	}
	want := []string{"early", "tie-first", "late"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order mismatch: got %v, want %v", got, want)
		}
	}
}

func TestNormalizeTimestampFormats(t *testing.T) {
	data := `{"conversations": [
		{"id": "c1", "messages": [
			{"id": "m1", "role": "user", "text": "rfc", "created_at": "2025-03-01T10:00:00Z"},
			{"id": "m2", "role": "user", "text": "naive", "created_at": "2025-03-01T11:00:00"},
			{"id": "m3", "role": "user", "text": "unix", "created_at": "1740826800"},
			{"id": "m4", "role": "user", "text": "garbage", "created_at": "last tuesday"}
		]}
	]}`

	convs, _, err := NewNormalizer().Normalize([]byte(data))
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	byID := map[string]bool{}
	for _, m := range convs[0].Messages {
		byID[m.ID] = m.Timestamp.IsZero()
	}
	for _, id := range []string{"m1", "m2", "m3"} {
		if byID[id] {
			t.Errorf("message %s should have a parsed timestamp", id)
		}
	}
	if !byID["m4"] {
		t.Error("unparseable timestamp should come back zero, not dropped")
	}
}

func TestNormalizeEmptyMessageListIsSkipNotError(t *testing.T) {
	data := `{"conversations": [
		{"id": "c1", "messages": []},
		{"id": "c2", "messages": [
			{"id": "m1", "role": "user", "text": "hello"}
		]}
	]}`

	convs, stats, err := NewNormalizer().Normalize([]byte(data))
	if err != nil {
		t.Fatalf("empty message list should not be fatal: %v", err)
	}
	if len(convs) != 1 || stats.SkippedConversations != 1 {
		t.Errorf("expected 1 kept and 1 skipped, got %d kept, stats %+v", len(convs), stats)
	}
}
