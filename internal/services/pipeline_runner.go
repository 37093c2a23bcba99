package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/convoscope/backend/internal/config"
	"github.com/convoscope/backend/internal/logger"
	"github.com/convoscope/backend/internal/models"
)

// ProgressFunc receives advisory progress updates. It may be nil; a
// panicking or slow callback never affects the final result.
type ProgressFunc func(percent int, step string)

// PipelineRunner sequences redaction, normalization, classification, and
// aggregation over one archive. Stateless between runs; the same archive
// and options always produce byte-identical output.
type PipelineRunner struct {
	cfg *config.Config
}

func NewPipelineRunner(cfg *config.Config) *PipelineRunner {
	return &PipelineRunner{cfg: cfg}
}

// Run executes the full pipeline. Per-message classification problems are
// recorded as notes and processing continues; only a structural archive
// failure, cancellation, or timeout aborts the run.
func (pr *PipelineRunner) Run(ctx context.Context, contentHash string, data []byte, opts models.AnalysisOptions, progress ProgressFunc) (*models.AnalysisResult, error) {
	log := logger.WithArchive(contentHash)

	lastPercent := -1
	emit := func(percent int, step string) {
		if percent <= lastPercent {
			percent = lastPercent
		} else {
			lastPercent = percent
		}
		if progress == nil {
			return
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.WithField("panic", r).Warn("Progress callback panicked")
				}
			}()
			progress(percent, step)
		}()
	}

	emit(2, "Loading archive")
	conversations, stats, err := NewNormalizer().Normalize(data)
	if err != nil {
		return nil, err
	}
	emit(10, fmt.Sprintf("Loaded %d conversations", len(conversations)))

	result := &models.AnalysisResult{
		ContentHash:     contentHash,
		OptionsHash:     opts.Hash(),
		Options:         opts,
		TopicTotals:     map[string]int{},
		SentimentTotals: map[string]int{},
	}
	result.Summary.SkippedConversations = stats.SkippedConversations
	result.Summary.SkippedMessages = stats.SkippedMessages

	redactions := map[string]map[string][]models.RedactionRecord{}
	if opts.EnablePrivacy {
		redactor, err := NewRedactor(pr.cfg.SecretKey, contentHash, nil)
		if err != nil {
			return nil, err
		}
		for i := range conversations {
			if err := checkCancelled(ctx, pr); err != nil {
				return nil, err
			}
			conv := &conversations[i]
			perConv := map[string][]models.RedactionRecord{}
			for j := range conv.Messages {
				redacted, records := redactor.Redact(conv.Messages[j].Text)
				conv.Messages[j].Text = redacted
				if len(records) > 0 {
					perConv[conv.Messages[j].ID] = records
					result.Summary.RedactionCount += len(records)
				}
			}
			redactions[conv.ID] = perConv
			emit(10+int(30*float64(i+1)/float64(max(len(conversations), 1))), "Redacting personal information")
		}
	}
	emit(40, "Redaction complete")

	topicClassifier, err := NewTopicClassifier(opts.CustomTopicPatterns)
	if err != nil {
		return nil, err
	}
	sentimentClassifier := NewSentimentClassifier()
	failureClassifier := NewFailureClassifier()

	totalMessages := 0
	for _, conv := range conversations {
		totalMessages += len(conv.Messages)
	}

	processed := 0
	batch := 0
	var totalLength, totalWords int
	for ci := range conversations {
		conv := &conversations[ci]
		for mi := range conv.Messages {
			if batch >= pr.cfg.ClassifyBatchSize {
				batch = 0
				if err := checkCancelled(ctx, pr); err != nil {
					return nil, err
				}
				emit(40+int(40*float64(processed)/float64(max(totalMessages, 1))), "Classifying messages")
			}
			batch++
			processed++

			cm, err := pr.classifyMessage(conv, mi, topicClassifier, sentimentClassifier, failureClassifier)
			if err != nil {
				note := fmt.Sprintf("conversation %s message %s: %v", conv.ID, conv.Messages[mi].ID, err)
				result.Notes = append(result.Notes, note)
				log.WithField("note", note).Warn("Message classification recovered")
				continue
			}
			cm.Redactions = redactions[conv.ID][cm.MessageID]

			totalLength += len(cm.Text)
			totalWords += cm.WordCount
			result.Summary.FailureCount += len(cm.Failures)
			for _, topic := range cm.Topics {
				result.TopicTotals[topic]++
			}
			result.SentimentTotals[cm.Sentiment]++
			if cm.Role == models.RoleUser {
				result.Summary.UserMessages++
			} else {
				result.Summary.AssistantMessages++
			}
			result.Messages = append(result.Messages, cm)
		}
	}
	emit(80, fmt.Sprintf("Classified %d messages", len(result.Messages)))

	if opts.EnableQuality {
		if err := checkCancelled(ctx, pr); err != nil {
			return nil, err
		}
		qualityClassifier := NewQualityClassifier()
		byConv := map[string][]models.ClassifiedMessage{}
		for _, cm := range result.Messages {
			byConv[cm.ConversationID] = append(byConv[cm.ConversationID], cm)
		}
		for _, conv := range conversations {
			result.Quality = append(result.Quality, qualityClassifier.Assess(conv, byConv[conv.ID]))
		}
		emit(88, "Assessed conversation quality")
	}

	if opts.EnableTemporal {
		if err := checkCancelled(ctx, pr); err != nil {
			return nil, err
		}
		aggregator := NewTemporalAggregator(pr.cfg.TrendWindow, pr.cfg.TrendDelta)
		result.Temporal = aggregator.Aggregate(result.Messages)
		emit(94, "Aggregated temporal patterns")
	}

	result.Summary.TotalConversations = len(conversations)
	result.Summary.TotalMessages = len(result.Messages)
	if len(result.Messages) > 0 {
		result.Summary.AvgMessageLength = round1(float64(totalLength) / float64(len(result.Messages)))
		result.Summary.AvgWordsPerMessage = round1(float64(totalWords) / float64(len(result.Messages)))
	}

	emit(100, "Analysis complete")
	return result, nil
}

// classifyMessage labels a single message. Classifier panics are contained
// here so one malformed message never aborts the archive.
func (pr *PipelineRunner) classifyMessage(conv *models.Conversation, idx int, topics *TopicClassifier, sentiments *SentimentClassifier, failures *FailureClassifier) (cm models.ClassifiedMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("classification panic: %v", r)
		}
	}()

	msg := conv.Messages[idx]
	cm = models.ClassifiedMessage{
		ConversationID: conv.ID,
		MessageID:      msg.ID,
		Ordinal:        msg.Ordinal,
		Role:           msg.Role,
		Text:           msg.Text,
		Timestamp:      msg.Timestamp,
		WordCount:      len(strings.Fields(msg.Text)),
	}

	labels := topics.Classify(msg.Text)
	sort.Strings(labels)
	cm.Topics = labels
	cm.Sentiment = sentiments.Classify(msg.Text)
	cm.Failures = failures.Detect(conv.Messages, idx)
	return cm, nil
}

// checkCancelled maps context termination onto the error taxonomy.
func checkCancelled(ctx context.Context, pr *PipelineRunner) error {
	switch ctx.Err() {
	case nil:
		return nil
	case context.DeadlineExceeded:
		return &TimeoutError{Limit: pr.cfg.JobTimeout}
	default:
		return &CancelledError{}
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
