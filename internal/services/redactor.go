package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/convoscope/backend/internal/models"
	"golang.org/x/crypto/hkdf"
)

// piiPattern is one structural detector. Patterns run in declaration order;
// structural ones (email, card, ssn, phone) run before the name heuristic so
// a phone number is never mis-tagged as a name token.
type piiPattern struct {
	category    string
	re          *regexp.Regexp
	placeholder string
}

var structuralPatterns = []piiPattern{
	{models.RedactionEmail, regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`), "[EMAIL]"},
	{models.RedactionAPIKey, regexp.MustCompile(`\b(?:sk|pk|key|token|api)[-_][A-Za-z0-9]{16,}\b|\b[A-Fa-f0-9]{32,}\b`), "[API_KEY]"},
	{models.RedactionSSN, regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), "[SSN]"},
	{models.RedactionCreditCard, regexp.MustCompile(`\b\d{4}[ -]?\d{4}[ -]?\d{4}[ -]?\d{4}\b`), "[CREDIT_CARD]"},
	{models.RedactionIP, regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`), "[IP]"},
	{models.RedactionPhone, regexp.MustCompile(`(?:\+?1[ .-]?)?(?:\(\d{3}\)|\d{3})[ .-]?\d{3}[ .-]?\d{4}\b`), "[PHONE]"},
	{models.RedactionAddress, regexp.MustCompile(`\b\d{1,5} (?:[A-Z][a-z]+ )+(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Lane|Ln|Drive|Dr|Court|Ct|Place|Pl|Way)\b`), "[ADDRESS]"},
}

var (
	orgRe    = regexp.MustCompile(`\b(?:[A-Z][A-Za-z0-9&-]+ )+(?:Inc|Corp|Corporation|LLC|Ltd|Company|Technologies|Labs|Systems|Solutions)\b`)
	personRe = regexp.MustCompile(`\b[A-Z][a-z]+(?: [A-Z][a-z]+)+\b`)
)

// knownVocabulary are capitalized words that start sentences or name common
// technology; a candidate span containing one is not treated as a person
// name. Over-matching here only costs pattern fidelity, never privacy.
var knownVocabulary = map[string]bool{
	"The": true, "This": true, "That": true, "These": true, "Those": true,
	"What": true, "When": true, "Where": true, "Which": true, "Why": true,
	"How": true, "Who": true, "Can": true, "Could": true, "Would": true,
	"Should": true, "Please": true, "Thanks": true, "Thank": true,
	"Hello": true, "Here": true, "There": true, "Now": true, "Then": true,
	"First": true, "Next": true, "Also": true, "However": true, "After": true,
	"Before": true, "Let": true, "Make": true, "Note": true, "Yes": true,
	"No": true, "New": true, "Best": true, "Regards": true, "Dear": true,
	"Python": true, "Java": true, "Javascript": true, "Typescript": true,
	"React": true, "Docker": true, "Kubernetes": true, "Linux": true,
	"Windows": true, "Postgres": true, "Redis": true, "Error": true,
	"Warning": true, "Internal": true, "Server": true, "Not": true,
	"Found": true, "Bad": true, "Request": true,
}

// Redactor removes PII from message text. Structural categories map to
// fixed placeholders; person and organization spans map to stable tokens
// derived from a per-archive key, so repeats of one name collapse to one
// token inside an archive but never correlate across archives.
type Redactor struct {
	tokenKey   []byte
	knownNames map[string]bool
}

// NewRedactor derives the archive-scoped token key from the deployment
// secret and the archive content hash. knownNames (optional) are redacted
// as person names even when the heuristic would miss them.
func NewRedactor(secret, contentHash string, knownNames []string) (*Redactor, error) {
	kdf := hkdf.New(sha256.New, []byte(secret), []byte(contentHash), []byte("entity-token"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("failed to derive token key: %w", err)
	}

	names := make(map[string]bool, len(knownNames))
	for _, n := range knownNames {
		names[normalizeEntity(n)] = true
	}
	return &Redactor{tokenKey: key, knownNames: names}, nil
}

// Redact replaces every detected PII span and reports one record per
// replacement. Idempotent: placeholders and entity tokens never match any
// detector, so re-redacting redacted text is a no-op.
func (r *Redactor) Redact(text string) (string, []models.RedactionRecord) {
	var records []models.RedactionRecord

	for _, p := range structuralPatterns {
		text = p.re.ReplaceAllStringFunc(text, func(match string) string {
			records = append(records, models.RedactionRecord{
				Category:    p.category,
				SpanHash:    spanHash(match),
				Replacement: p.placeholder,
			})
			return p.placeholder
		})
	}

	text = orgRe.ReplaceAllStringFunc(text, func(match string) string {
		token := r.entityToken("ORG", match)
		records = append(records, models.RedactionRecord{
			Category:    models.RedactionOrganization,
			SpanHash:    spanHash(match),
			Replacement: token,
		})
		return token
	})

	text = personRe.ReplaceAllStringFunc(text, func(match string) string {
		if !r.looksLikePerson(match) {
			return match
		}
		token := r.entityToken("PERSON", match)
		records = append(records, models.RedactionRecord{
			Category:    models.RedactionPersonName,
			SpanHash:    spanHash(match),
			Replacement: token,
		})
		return token
	})

	return text, records
}

func (r *Redactor) looksLikePerson(span string) bool {
	if r.knownNames[normalizeEntity(span)] {
		return true
	}
	for _, word := range strings.Fields(span) {
		if knownVocabulary[word] {
			return false
		}
	}
	return true
}

// entityToken derives the stable per-archive token for a name or org.
func (r *Redactor) entityToken(kind, original string) string {
	mac := hmac.New(sha256.New, r.tokenKey)
	mac.Write([]byte(kind))
	mac.Write([]byte{0})
	mac.Write([]byte(normalizeEntity(original)))
	return kind + "_" + hex.EncodeToString(mac.Sum(nil))[:8]
}

func normalizeEntity(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func spanHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}
