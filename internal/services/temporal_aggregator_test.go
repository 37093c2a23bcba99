package services

import (
	"testing"
	"time"

	"github.com/convoscope/backend/internal/models"
)

func msgOn(day string, sentiment string, topics ...string) models.ClassifiedMessage {
	ts, _ := time.Parse("2006-01-02", day)
	return models.ClassifiedMessage{
		Role:      models.RoleUser,
		Text:      "x",
		Timestamp: ts.Add(10 * time.Hour),
		Sentiment: sentiment,
		Topics:    topics,
	}
}

func msgsOn(day string, count int) []models.ClassifiedMessage {
	msgs := make([]models.ClassifiedMessage, 0, count)
	for i := 0; i < count; i++ {
		msgs = append(msgs, msgOn(day, models.SentimentNeutral, TopicUncategorized))
	}
	return msgs
}

func bucketFor(report *models.TemporalReport, granularity, period string) *models.TemporalBucket {
	for i := range report.Buckets {
		b := &report.Buckets[i]
		if b.Granularity == granularity && b.Period == period {
			return b
		}
	}
	return nil
}

func TestAggregateBucketsAllGranularities(t *testing.T) {
	ta := NewTemporalAggregator(7, 0.25)

	msgs := []models.ClassifiedMessage{
		msgOn("2025-03-03", models.SentimentPositive, "Programming"),
		msgOn("2025-03-03", models.SentimentNegative, "Programming", "Databases"),
		msgOn("2025-03-04", models.SentimentNeutral, TopicUncategorized),
	}
	report := ta.Aggregate(msgs)

	day := bucketFor(report, models.GranularityDay, "2025-03-03")
	if day == nil {
		t.Fatal("missing day bucket for 2025-03-03")
	}
	if day.MessageCount != 2 {
		t.Errorf("day message count = %d, want 2", day.MessageCount)
	}
	if day.Sentiment[models.SentimentPositive] != 1 || day.Sentiment[models.SentimentNegative] != 1 {
		t.Errorf("unexpected sentiment tally: %+v", day.Sentiment)
	}
	if day.Topics["Programming"] != 2 || day.Topics["Databases"] != 1 {
		t.Errorf("unexpected topic tally: %+v", day.Topics)
	}

	week := bucketFor(report, models.GranularityWeek, "2025-W10")
	if week == nil || week.MessageCount != 3 {
		t.Fatalf("missing or wrong week bucket: %+v", week)
	}
	month := bucketFor(report, models.GranularityMonth, "2025-03")
	if month == nil || month.MessageCount != 3 {
		t.Fatalf("missing or wrong month bucket: %+v", month)
	}

	if report.ActiveDays != 2 {
		t.Errorf("ActiveDays = %d, want 2", report.ActiveDays)
	}
}

func TestAggregateSkipsZeroTimestamps(t *testing.T) {
	ta := NewTemporalAggregator(7, 0.25)

	msgs := []models.ClassifiedMessage{
		{Role: models.RoleUser, Text: "no timestamp", Sentiment: models.SentimentNeutral},
		msgOn("2025-03-03", models.SentimentNeutral, TopicUncategorized),
	}
	report := ta.Aggregate(msgs)

	day := bucketFor(report, models.GranularityDay, "2025-03-03")
	if day == nil || day.MessageCount != 1 {
		t.Fatalf("expected one bucketed message, got %+v", day)
	}
	if report.ActiveDays != 1 {
		t.Errorf("ActiveDays = %d, want 1", report.ActiveDays)
	}
}

func TestStreaksBreakOnGap(t *testing.T) {
	ta := NewTemporalAggregator(7, 0.25)

	var msgs []models.ClassifiedMessage
	for _, day := range []string{"2025-03-01", "2025-03-02", "2025-03-03", "2025-03-05", "2025-03-06"} {
		msgs = append(msgs, msgOn(day, models.SentimentNeutral, TopicUncategorized))
	}
	report := ta.Aggregate(msgs)

	if report.LongestStreak == nil || report.LongestStreak.Length != 3 {
		t.Fatalf("LongestStreak = %+v, want length 3", report.LongestStreak)
	}
	if report.LongestStreak.Start != "2025-03-01" || report.LongestStreak.End != "2025-03-03" {
		t.Errorf("longest streak bounds: %+v", report.LongestStreak)
	}
	if report.CurrentStreak == nil || report.CurrentStreak.Length != 2 {
		t.Fatalf("CurrentStreak = %+v, want length 2", report.CurrentStreak)
	}
	if report.CurrentStreak.Start != "2025-03-05" || report.CurrentStreak.End != "2025-03-06" {
		t.Errorf("current streak bounds: %+v", report.CurrentStreak)
	}
}

func TestTrendShiftRequiresWholeWindow(t *testing.T) {
	ta := NewTemporalAggregator(2, 0.25)

	// Two quiet days then two busy days: a sustained volume shift up.
	var sustained []models.ClassifiedMessage
	sustained = append(sustained, msgsOn("2025-03-01", 2)...)
	sustained = append(sustained, msgsOn("2025-03-02", 2)...)
	sustained = append(sustained, msgsOn("2025-03-03", 6)...)
	sustained = append(sustained, msgsOn("2025-03-04", 6)...)

	report := ta.Aggregate(sustained)
	foundUp := false
	for _, shift := range report.TrendShifts {
		if shift.Metric == "volume" && shift.Direction == "up" && shift.Period == "2025-03-03" {
			foundUp = true
		}
	}
	if !foundUp {
		t.Errorf("sustained volume increase not detected: %+v", report.TrendShifts)
	}

	// One outlier day inside an otherwise flat run is not a shift.
	var outlier []models.ClassifiedMessage
	outlier = append(outlier, msgsOn("2025-03-01", 2)...)
	outlier = append(outlier, msgsOn("2025-03-02", 2)...)
	outlier = append(outlier, msgsOn("2025-03-03", 9)...)
	outlier = append(outlier, msgsOn("2025-03-04", 2)...)

	report = ta.Aggregate(outlier)
	for _, shift := range report.TrendShifts {
		if shift.Metric == "volume" {
			t.Errorf("outlier flagged as a trend shift: %+v", shift)
		}
	}
}

func TestTrendShiftSentimentDown(t *testing.T) {
	ta := NewTemporalAggregator(2, 0.5)

	var msgs []models.ClassifiedMessage
	for _, day := range []string{"2025-03-01", "2025-03-02"} {
		msgs = append(msgs, msgOn(day, models.SentimentPositive, TopicUncategorized))
	}
	for _, day := range []string{"2025-03-03", "2025-03-04"} {
		msgs = append(msgs, msgOn(day, models.SentimentFrustrated, TopicUncategorized))
	}

	report := ta.Aggregate(msgs)
	found := false
	for _, shift := range report.TrendShifts {
		if shift.Metric == "sentiment" && shift.Direction == "down" {
			found = true
		}
	}
	if !found {
		t.Errorf("sentiment collapse not detected: %+v", report.TrendShifts)
	}
}

func TestAggregateEmptyInput(t *testing.T) {
	ta := NewTemporalAggregator(7, 0.25)

	report := ta.Aggregate(nil)
	if len(report.Buckets) != 0 || report.ActiveDays != 0 {
		t.Errorf("empty input produced data: %+v", report)
	}
	if report.CurrentStreak != nil || report.LongestStreak != nil {
		t.Errorf("empty input produced streaks: %+v", report)
	}
}
