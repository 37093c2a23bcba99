package services

import (
	"testing"

	"github.com/convoscope/backend/internal/models"
)

func TestSentimentClassify(t *testing.T) {
	sc := NewSentimentClassifier()

	tests := []struct {
		text string
		want string
	}{
		{"I need this fixed asap, the deadline is today", models.SentimentUrgent},
		{"this is still not working, I already told you twice", models.SentimentFrustrated},
		{"the build failed with an error again", models.SentimentNegative},
		{"how does the scheduler decide which worker runs", models.SentimentQuestioning},
		{"let's try a different approach together", models.SentimentCollaborative},
		{"thank you, that worked perfectly", models.SentimentSatisfied},
		{"great explanation, very helpful", models.SentimentPositive},
		{"the meeting moved to thursday afternoon", models.SentimentNeutral},
	}

	for _, tt := range tests {
		if got := sc.Classify(tt.text); got != tt.want {
			t.Errorf("Classify(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestSentimentPriorityOrder(t *testing.T) {
	sc := NewSentimentClassifier()

	tests := []struct {
		name string
		text string
		want string
	}{
		{"urgent beats frustrated", "urgent: this is still not working", models.SentimentUrgent},
		{"frustrated beats negative", "still broken, the error is frustrating", models.SentimentFrustrated},
		{"negative beats questioning", "why does it crash every time", models.SentimentNegative},
		{"questioning beats collaborative", "how about we split it, what do you think?", models.SentimentQuestioning},
		{"satisfied beats positive", "thanks, that worked, great job", models.SentimentSatisfied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sc.Classify(tt.text); got != tt.want {
				t.Errorf("Classify(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestSentimentStructuralCues(t *testing.T) {
	sc := NewSentimentClassifier()

	// Three exclamation marks alone read as urgency.
	if got := sc.Classify("do the thing!!! right away"); got != models.SentimentUrgent {
		t.Errorf("exclamation pileup: got %q, want %q", got, models.SentimentUrgent)
	}

	// Question mark plus exclamation reads as frustration.
	if got := sc.Classify("seriously? just make it run!"); got != models.SentimentFrustrated {
		t.Errorf("question+exclamation: got %q, want %q", got, models.SentimentFrustrated)
	}

	// A bare trailing question mark is questioning.
	if got := sc.Classify("the config lives in the repo root?"); got != models.SentimentQuestioning {
		t.Errorf("trailing question: got %q, want %q", got, models.SentimentQuestioning)
	}
}

func TestSentimentAlwaysReturnsALevel(t *testing.T) {
	sc := NewSentimentClassifier()

	valid := map[string]bool{
		models.SentimentUrgent: true, models.SentimentFrustrated: true,
		models.SentimentNegative: true, models.SentimentQuestioning: true,
		models.SentimentCollaborative: true, models.SentimentSatisfied: true,
		models.SentimentPositive: true, models.SentimentNeutral: true,
	}

	for _, text := range []string{"", "ok", "xyzzy plugh", "42"} {
		if got := sc.Classify(text); !valid[got] {
			t.Errorf("Classify(%q) returned unknown level %q", text, got)
		}
	}
}
