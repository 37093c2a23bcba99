package services

import (
	"fmt"
	"sort"
	"time"

	"github.com/convoscope/backend/internal/models"
)

// TemporalAggregator buckets the classified stream by calendar period and
// derives streaks and trend shifts. Streaks are strictly consecutive: one
// gap period breaks them. A trend shift requires the delta to hold for the
// whole comparison window, never a single outlier period.
type TemporalAggregator struct {
	window int
	delta  float64
}

func NewTemporalAggregator(window int, delta float64) *TemporalAggregator {
	if window < 2 {
		window = 2
	}
	return &TemporalAggregator{window: window, delta: delta}
}

// sentimentScore maps levels onto a single axis for trend comparison.
var sentimentScore = map[string]float64{
	models.SentimentUrgent:        -2,
	models.SentimentFrustrated:    -2,
	models.SentimentNegative:      -1,
	models.SentimentQuestioning:   0,
	models.SentimentNeutral:       0,
	models.SentimentCollaborative: 1,
	models.SentimentSatisfied:     2,
	models.SentimentPositive:      2,
}

// Aggregate produces day, week, and month buckets plus streak and trend
// facts. Messages without a usable timestamp are excluded from bucketing.
func (ta *TemporalAggregator) Aggregate(msgs []models.ClassifiedMessage) *models.TemporalReport {
	type bucketAccum struct {
		bucket   *models.TemporalBucket
		score    float64
		sentible int
	}
	accum := map[string]map[string]*bucketAccum{
		models.GranularityDay:   {},
		models.GranularityWeek:  {},
		models.GranularityMonth: {},
	}

	for i := range msgs {
		m := &msgs[i]
		if m.Timestamp.IsZero() {
			continue
		}
		for granularity, key := range periodKeys(m.Timestamp) {
			ba := accum[granularity][key]
			if ba == nil {
				ba = &bucketAccum{bucket: &models.TemporalBucket{
					Period:      key,
					Granularity: granularity,
					Sentiment:   map[string]int{},
					Topics:      map[string]int{},
				}}
				accum[granularity][key] = ba
			}
			b := ba.bucket
			b.MessageCount++
			b.FailureCount += len(m.Failures)
			b.Sentiment[m.Sentiment]++
			for _, topic := range m.Topics {
				b.Topics[topic]++
			}
			ba.score += sentimentScore[m.Sentiment]
			ba.sentible++
		}
	}

	report := &models.TemporalReport{}
	var dayKeys []string
	dayScores := map[string]float64{}
	for _, granularity := range []string{models.GranularityDay, models.GranularityWeek, models.GranularityMonth} {
		keys := make([]string, 0, len(accum[granularity]))
		for key := range accum[granularity] {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			ba := accum[granularity][key]
			report.Buckets = append(report.Buckets, *ba.bucket)
			if granularity == models.GranularityDay {
				dayKeys = append(dayKeys, key)
				if ba.sentible > 0 {
					dayScores[key] = ba.score / float64(ba.sentible)
				}
			}
		}
	}

	report.ActiveDays = len(dayKeys)
	report.CurrentStreak, report.LongestStreak = ta.streaks(dayKeys)

	volumes := make([]float64, len(dayKeys))
	scores := make([]float64, len(dayKeys))
	for i, key := range dayKeys {
		volumes[i] = float64(accum[models.GranularityDay][key].bucket.MessageCount)
		scores[i] = dayScores[key]
	}
	report.TrendShifts = append(report.TrendShifts, ta.detectShifts("volume", dayKeys, volumes, true)...)
	report.TrendShifts = append(report.TrendShifts, ta.detectShifts("sentiment", dayKeys, scores, false)...)

	return report
}

func periodKeys(t time.Time) map[string]string {
	year, week := t.ISOWeek()
	return map[string]string{
		models.GranularityDay:   t.Format("2006-01-02"),
		models.GranularityWeek:  fmt.Sprintf("%04d-W%02d", year, week),
		models.GranularityMonth: t.Format("2006-01"),
	}
}

// streaks walks the sorted active days and returns the streak ending on the
// last active day plus the longest one overall.
func (ta *TemporalAggregator) streaks(dayKeys []string) (current, longest *models.Streak) {
	if len(dayKeys) == 0 {
		return nil, nil
	}

	days := make([]time.Time, len(dayKeys))
	for i, key := range dayKeys {
		days[i], _ = time.Parse("2006-01-02", key)
	}

	run := models.Streak{Start: dayKeys[0], End: dayKeys[0], Length: 1}
	best := run
	for i := 1; i < len(days); i++ {
		if days[i].Sub(days[i-1]) == 24*time.Hour {
			run.End = dayKeys[i]
			run.Length++
		} else {
			run = models.Streak{Start: dayKeys[i], End: dayKeys[i], Length: 1}
		}
		if run.Length > best.Length {
			best = run
		}
	}

	currentCopy := run
	longestCopy := best
	return &currentCopy, &longestCopy
}

// detectShifts compares each window against the mean of the window before
// it. Every period in the candidate window must clear the delta in the same
// direction. relative switches between ratio (volume) and absolute
// (sentiment score) comparison.
func (ta *TemporalAggregator) detectShifts(metric string, keys []string, values []float64, relative bool) []models.TrendShift {
	var shifts []models.TrendShift
	w := ta.window
	for i := w; i+w <= len(values); i++ {
		baseline := mean(values[i-w : i])

		var up, down float64
		if relative {
			up = baseline * (1 + ta.delta)
			down = baseline * (1 - ta.delta)
		} else {
			up = baseline + ta.delta
			down = baseline - ta.delta
		}

		window := values[i : i+w]
		if holdsAbove(window, up) {
			shifts = append(shifts, models.TrendShift{
				Metric:    metric,
				Direction: "up",
				Period:    keys[i],
				Delta:     mean(window) - baseline,
			})
			i += w - 1
		} else if holdsBelow(window, down) {
			shifts = append(shifts, models.TrendShift{
				Metric:    metric,
				Direction: "down",
				Period:    keys[i],
				Delta:     mean(window) - baseline,
			})
			i += w - 1
		}
	}
	return shifts
}

func holdsAbove(values []float64, threshold float64) bool {
	for _, v := range values {
		if v <= threshold {
			return false
		}
	}
	return true
}

func holdsBelow(values []float64, threshold float64) bool {
	for _, v := range values {
		if v >= threshold {
			return false
		}
	}
	return true
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
