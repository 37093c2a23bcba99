package models

import "time"

// Redaction categories.
const (
	RedactionEmail        = "email"
	RedactionPhone        = "phone"
	RedactionSSN          = "ssn"
	RedactionCreditCard   = "credit_card"
	RedactionAddress      = "address"
	RedactionIP           = "ip"
	RedactionAPIKey       = "api_key"
	RedactionPersonName   = "person_name"
	RedactionOrganization = "organization"
)

// RedactionRecord describes one replaced span. SpanHash is a truncated
// digest of the original text; the original itself is never stored.
type RedactionRecord struct {
	Category    string `json:"category"`
	SpanHash    string `json:"spanHash"`
	Replacement string `json:"replacement"`
}

// Sentiment levels, listed in tie-break priority order.
const (
	SentimentUrgent        = "urgent"
	SentimentFrustrated    = "frustrated"
	SentimentNegative      = "negative"
	SentimentQuestioning   = "questioning"
	SentimentCollaborative = "collaborative"
	SentimentSatisfied     = "satisfied"
	SentimentPositive      = "positive"
	SentimentNeutral       = "neutral"
)

// Failure finding severities.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

// FailureFinding is one detected assistant failure. A message carries at
// most one finding per type; severity is a fixed function of the type.
type FailureFinding struct {
	Type     string `json:"type"`
	Severity string `json:"severity"`
	Evidence string `json:"evidence"`
}

// ClassifiedMessage is a redacted message plus its labels. Topics always
// has at least one entry; Sentiment is always exactly one level.
type ClassifiedMessage struct {
	ConversationID string            `json:"conversationId"`
	MessageID      string            `json:"messageId"`
	Ordinal        int               `json:"ordinal"`
	Role           string            `json:"role"`
	Text           string            `json:"text"`
	Timestamp      time.Time         `json:"timestamp"`
	WordCount      int               `json:"wordCount"`
	Topics         []string          `json:"topics"`
	Sentiment      string            `json:"sentiment"`
	Failures       []FailureFinding  `json:"failures,omitempty"`
	Redactions     []RedactionRecord `json:"redactions,omitempty"`
}

// Task completion states.
const (
	CompletionCompleted  = "completed"
	CompletionInProgress = "in_progress"
	CompletionAbandoned  = "abandoned"
	CompletionBlocked    = "blocked"
)

// Collaboration quality levels.
const (
	CollaborationHigh            = "high"
	CollaborationMedium          = "medium"
	CollaborationLow             = "low"
	CollaborationConfrontational = "confrontational"
)

// Response effectiveness grades.
const (
	EffectivenessExcellent = "excellent"
	EffectivenessGood      = "good"
	EffectivenessFair      = "fair"
	EffectivenessPoor      = "poor"
)

// ConversationQuality holds the per-conversation derived facts.
type ConversationQuality struct {
	ConversationID string `json:"conversationId"`
	Title          string `json:"title"`
	MessageCount   int    `json:"messageCount"`
	TaskCompletion string `json:"taskCompletion"`
	Collaboration  string `json:"collaboration"`
	Effectiveness  string `json:"effectiveness"`
}

// Temporal bucket granularities.
const (
	GranularityDay   = "day"
	GranularityWeek  = "week"
	GranularityMonth = "month"
)

// TemporalBucket aggregates one calendar period.
type TemporalBucket struct {
	Period       string         `json:"period"`
	Granularity  string         `json:"granularity"`
	MessageCount int            `json:"messageCount"`
	FailureCount int            `json:"failureCount"`
	Sentiment    map[string]int `json:"sentiment"`
	Topics       map[string]int `json:"topics"`
}

// Streak is a run of consecutive active periods.
type Streak struct {
	Start  string `json:"start"`
	End    string `json:"end"`
	Length int    `json:"length"`
}

// TrendShift marks a sustained change in a metric over a whole window.
type TrendShift struct {
	Metric    string  `json:"metric"`    // "volume" or "sentiment"
	Direction string  `json:"direction"` // "up" or "down"
	Period    string  `json:"period"`    // first period of the shifted window
	Delta     float64 `json:"delta"`
}

// TemporalReport is the full temporal aggregation output.
type TemporalReport struct {
	Buckets       []TemporalBucket `json:"buckets"`
	ActiveDays    int              `json:"activeDays"`
	CurrentStreak *Streak          `json:"currentStreak,omitempty"`
	LongestStreak *Streak          `json:"longestStreak,omitempty"`
	TrendShifts   []TrendShift     `json:"trendShifts,omitempty"`
}

// Summary holds the top-level counters for one analysis.
type Summary struct {
	TotalConversations   int     `json:"totalConversations"`
	TotalMessages        int     `json:"totalMessages"`
	UserMessages         int     `json:"userMessages"`
	AssistantMessages    int     `json:"assistantMessages"`
	SkippedConversations int     `json:"skippedConversations"`
	SkippedMessages      int     `json:"skippedMessages"`
	AvgMessageLength     float64 `json:"avgMessageLength"`
	AvgWordsPerMessage   float64 `json:"avgWordsPerMessage"`
	RedactionCount       int     `json:"redactionCount"`
	FailureCount         int     `json:"failureCount"`
}

// AnalysisResult is the immutable output of one pipeline run. Identity is
// (ContentHash, OptionsHash); re-running with the same pair produces
// byte-identical serialization.
type AnalysisResult struct {
	ContentHash     string                `json:"contentHash"`
	OptionsHash     string                `json:"optionsHash"`
	Options         AnalysisOptions       `json:"options"`
	Summary         Summary               `json:"summary"`
	Messages        []ClassifiedMessage   `json:"messages"`
	Quality         []ConversationQuality `json:"quality,omitempty"`
	Temporal        *TemporalReport       `json:"temporal,omitempty"`
	TopicTotals     map[string]int        `json:"topicTotals"`
	SentimentTotals map[string]int        `json:"sentimentTotals"`
	Notes           []string              `json:"notes,omitempty"`
}
