package services

import (
	"strings"
	"testing"

	"github.com/convoscope/backend/internal/models"
)

func newTestRedactor(t *testing.T, contentHash string) *Redactor {
	t.Helper()
	r, err := NewRedactor("test-secret", contentHash, nil)
	if err != nil {
		t.Fatalf("NewRedactor failed: %v", err)
	}
	return r
}

func TestRedactStructuralCategories(t *testing.T) {
	r := newTestRedactor(t, "hash-a")

	tests := []struct {
		name        string
		text        string
		category    string
		replacement string
	}{
		{"email", "reach me at alice@example.com please", models.RedactionEmail, "[EMAIL]"},
		{"ssn", "my ssn is 123-45-6789", models.RedactionSSN, "[SSN]"},
		{"credit card", "card 4111 1111 1111 1111 expires soon", models.RedactionCreditCard, "[CREDIT_CARD]"},
		{"phone", "call 555-867-5309 tomorrow", models.RedactionPhone, "[PHONE]"},
		{"ip", "the server at 192.168.1.10 is down", models.RedactionIP, "[IP]"},
		{"api key", "use sk_abcdef1234567890abcdef to authenticate", models.RedactionAPIKey, "[API_KEY]"},
		{"address", "ship to 42 Elm Street before friday", models.RedactionAddress, "[ADDRESS]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			redacted, records := r.Redact(tt.text)
			if !strings.Contains(redacted, tt.replacement) {
				t.Errorf("expected %q in output, got %q", tt.replacement, redacted)
			}
			found := false
			for _, rec := range records {
				if rec.Category == tt.category {
					found = true
					if rec.SpanHash == "" {
						t.Error("record is missing a span hash")
					}
				}
			}
			if !found {
				t.Errorf("no record with category %q, records: %+v", tt.category, records)
			}
		})
	}
}

func TestRedactIsIdempotent(t *testing.T) {
	r := newTestRedactor(t, "hash-a")

	inputs := []string{
		"Contact John Smith at john@example.com or 555-123-4567",
		"Acme Widgets Inc shipped to 12 Oak Avenue",
		"ssn 123-45-6789 card 4111-1111-1111-1111 ip 10.0.0.1",
	}

	for _, input := range inputs {
		once, _ := r.Redact(input)
		twice, records := r.Redact(once)
		if once != twice {
			t.Errorf("re-redaction changed text:\n first: %q\nsecond: %q", once, twice)
		}
		if len(records) != 0 {
			t.Errorf("re-redaction produced %d new records: %+v", len(records), records)
		}
	}
}

func TestRedactPersonTokensStableWithinArchive(t *testing.T) {
	r := newTestRedactor(t, "hash-a")

	first, _ := r.Redact("I spoke with Maria Gonzalez yesterday")
	second, _ := r.Redact("Maria Gonzalez confirmed the plan")

	tok1 := extractToken(first, "PERSON_")
	tok2 := extractToken(second, "PERSON_")
	if tok1 == "" || tok2 == "" {
		t.Fatalf("expected person tokens, got %q and %q", first, second)
	}
	if tok1 != tok2 {
		t.Errorf("same name produced different tokens within an archive: %q vs %q", tok1, tok2)
	}
}

func TestRedactPersonTokensDifferAcrossArchives(t *testing.T) {
	ra := newTestRedactor(t, "hash-a")
	rb := newTestRedactor(t, "hash-b")

	outA, _ := ra.Redact("Maria Gonzalez wrote the report")
	outB, _ := rb.Redact("Maria Gonzalez wrote the report")

	tokA := extractToken(outA, "PERSON_")
	tokB := extractToken(outB, "PERSON_")
	if tokA == "" || tokB == "" {
		t.Fatalf("expected person tokens, got %q and %q", outA, outB)
	}
	if tokA == tokB {
		t.Error("entity tokens correlate across archives")
	}
}

func TestRedactOrganizationBeforePerson(t *testing.T) {
	r := newTestRedactor(t, "hash-a")

	redacted, records := r.Redact("I interviewed at Globex Data Systems last week")
	if !strings.Contains(redacted, "ORG_") {
		t.Fatalf("expected org token, got %q", redacted)
	}
	for _, rec := range records {
		if rec.Category == models.RedactionPersonName {
			t.Errorf("organization span was also tagged as a person: %+v", rec)
		}
	}
}

func TestRedactSkipsKnownVocabulary(t *testing.T) {
	r := newTestRedactor(t, "hash-a")

	redacted, records := r.Redact("The Docker Container keeps restarting")
	if strings.Contains(redacted, "PERSON_") {
		t.Errorf("technology phrase redacted as a name: %q", redacted)
	}
	if len(records) != 0 {
		t.Errorf("expected no records, got %+v", records)
	}
}

func TestRedactKnownNamesForced(t *testing.T) {
	r, err := NewRedactor("test-secret", "hash-a", []string{"Docker Compose"})
	if err != nil {
		t.Fatalf("NewRedactor failed: %v", err)
	}

	redacted, _ := r.Redact("ask Docker Compose about it")
	if !strings.Contains(redacted, "PERSON_") {
		t.Errorf("known name was not redacted: %q", redacted)
	}
}

func extractToken(text, prefix string) string {
	i := strings.Index(text, prefix)
	if i < 0 {
		return ""
	}
	end := i + len(prefix)
	for end < len(text) && isHexChar(text[end]) {
		end++
	}
	return text[i:end]
}

func isHexChar(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')
}
