package services

import (
	"strings"

	"github.com/convoscope/backend/internal/models"
)

// QualityClassifier derives the per-conversation facts: task completion
// state, collaboration quality, and response effectiveness. It consumes the
// already classified messages of one conversation.
type QualityClassifier struct{}

func NewQualityClassifier() *QualityClassifier {
	return &QualityClassifier{}
}

var completionCues = []string{
	"that worked", "works now", "working now", "perfect", "solved",
	"that fixed", "got it working", "all set", "thanks, that", "thank you, that",
}

// Assess returns the quality facts for one conversation. Completion uses
// the ordered decision rule: explicit completion markers, then abandonment
// after an open assistant question, then a blocking failure in the final
// turn, otherwise in progress.
func (qc *QualityClassifier) Assess(conv models.Conversation, classified []models.ClassifiedMessage) models.ConversationQuality {
	quality := models.ConversationQuality{
		ConversationID: conv.ID,
		Title:          conv.Title,
		MessageCount:   len(classified),
	}

	quality.TaskCompletion = qc.taskCompletion(classified)
	quality.Collaboration = qc.collaboration(classified)
	quality.Effectiveness = qc.effectiveness(classified, quality.TaskCompletion)
	return quality
}

func (qc *QualityClassifier) taskCompletion(msgs []models.ClassifiedMessage) string {
	if len(msgs) == 0 {
		return models.CompletionInProgress
	}

	// Explicit completion language in the closing user turns wins.
	checked := 0
	for i := len(msgs) - 1; i >= 0 && checked < 3; i-- {
		if msgs[i].Role != models.RoleUser {
			continue
		}
		checked++
		lower := strings.ToLower(msgs[i].Text)
		if firstCue(lower, completionCues) != "" {
			return models.CompletionCompleted
		}
	}

	last := msgs[len(msgs)-1]
	if last.Role == models.RoleAssistant && strings.Contains(last.Text, "?") {
		return models.CompletionAbandoned
	}

	if last.Role == models.RoleAssistant {
		for _, f := range last.Failures {
			if f.Severity == models.SeverityHigh {
				return models.CompletionBlocked
			}
		}
	}

	return models.CompletionInProgress
}

func (qc *QualityClassifier) collaboration(msgs []models.ClassifiedMessage) string {
	if len(msgs) == 0 {
		return models.CollaborationMedium
	}

	var frustrated, negative, cooperative int
	for _, m := range msgs {
		if m.Role != models.RoleUser {
			continue
		}
		switch m.Sentiment {
		case models.SentimentFrustrated, models.SentimentUrgent:
			frustrated++
		case models.SentimentNegative:
			negative++
		case models.SentimentCollaborative, models.SentimentSatisfied, models.SentimentPositive:
			cooperative++
		}
	}

	userTurns := 0
	for _, m := range msgs {
		if m.Role == models.RoleUser {
			userTurns++
		}
	}
	if userTurns == 0 {
		return models.CollaborationMedium
	}

	density := qc.failureDensity(msgs)

	switch {
	case frustrated >= 2 && float64(frustrated+negative)/float64(userTurns) > 0.4:
		return models.CollaborationConfrontational
	case float64(cooperative)/float64(userTurns) >= 0.3 && density < 0.1:
		return models.CollaborationHigh
	case density > 0.3 || float64(negative+frustrated)/float64(userTurns) > 0.25:
		return models.CollaborationLow
	default:
		return models.CollaborationMedium
	}
}

func (qc *QualityClassifier) effectiveness(msgs []models.ClassifiedMessage, completion string) string {
	density := qc.failureDensity(msgs)
	switch {
	case density < 0.05 && completion == models.CompletionCompleted:
		return models.EffectivenessExcellent
	case density < 0.15:
		return models.EffectivenessGood
	case density < 0.35:
		return models.EffectivenessFair
	default:
		return models.EffectivenessPoor
	}
}

func (qc *QualityClassifier) failureDensity(msgs []models.ClassifiedMessage) float64 {
	assistantTurns := 0
	findings := 0
	for _, m := range msgs {
		if m.Role != models.RoleAssistant {
			continue
		}
		assistantTurns++
		findings += len(m.Failures)
	}
	if assistantTurns == 0 {
		return 0
	}
	return float64(findings) / float64(assistantTurns)
}
