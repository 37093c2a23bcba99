package services

import (
	"strings"

	"github.com/convoscope/backend/internal/models"
)

// SentimentClassifier scores lexical and structural cues into one of eight
// mutually exclusive levels. Ties break by a fixed priority order: urgent,
// then the negative variants, questioning, collaborative, the positive
// variants, and finally neutral.
type SentimentClassifier struct{}

func NewSentimentClassifier() *SentimentClassifier {
	return &SentimentClassifier{}
}

var (
	urgentCues = []string{
		"urgent", "asap", "immediately", "right now", "emergency",
		"critical", "deadline", "time sensitive", "as soon as possible",
	}
	frustratedCues = []string{
		"still not working", "still doesn't", "still broken", "yet again",
		"how many times", "this is wrong", "useless", "waste of time",
		"i already told you", "why won't", "frustrating", "fed up",
	}
	negativeCues = []string{
		"doesn't work", "not working", "does not work", "broken", "failed",
		"failing", "error", "wrong", "bad", "crash", "can't", "cannot",
		"never", "problem", "issue", "stuck",
	}
	collaborativeCues = []string{
		"let's", "lets try", "we could", "shall we", "how about",
		"what if we", "together", "let us", "we should", "our approach",
	}
	satisfiedCues = []string{
		"thank you", "thanks", "that worked", "works now", "perfect",
		"solved", "that fixed", "exactly what i needed", "got it working",
	}
	positiveCues = []string{
		"great", "awesome", "excellent", "amazing", "love it", "nice",
		"well done", "fantastic", "brilliant", "good job", "helpful",
	}
	questionStarters = []string{
		"how ", "what ", "why ", "where ", "when ", "which ", "who ",
		"can ", "could ", "would ", "is ", "are ", "do ", "does ",
	}
)

// Classify returns exactly one sentiment level for the text.
func (sc *SentimentClassifier) Classify(text string) string {
	lower := strings.ToLower(text)

	exclamations := strings.Count(text, "!")
	questions := strings.Count(text, "?")

	urgency := countCues(lower, urgentCues)
	if exclamations >= 3 {
		urgency++
	}
	frustration := countCues(lower, frustratedCues)
	if questions >= 1 && exclamations >= 1 {
		frustration++
	}
	negativity := countCues(lower, negativeCues)
	collaboration := countCues(lower, collaborativeCues)
	satisfaction := countCues(lower, satisfiedCues)
	positivity := countCues(lower, positiveCues)

	questioning := questions
	for _, starter := range questionStarters {
		if strings.HasPrefix(lower, starter) {
			questioning++
			break
		}
	}

	switch {
	case urgency >= 1:
		return models.SentimentUrgent
	case frustration >= 1:
		return models.SentimentFrustrated
	case negativity >= 1:
		return models.SentimentNegative
	case questioning >= 1:
		return models.SentimentQuestioning
	case collaboration >= 1:
		return models.SentimentCollaborative
	case satisfaction >= 1:
		return models.SentimentSatisfied
	case positivity >= 1:
		return models.SentimentPositive
	default:
		return models.SentimentNeutral
	}
}

func countCues(lower string, cues []string) int {
	count := 0
	for _, cue := range cues {
		count += strings.Count(lower, cue)
	}
	return count
}
