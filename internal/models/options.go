package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
)

// AnalysisOptions enumerates every recognized analysis option with its
// default. Unknown keys are rejected at submission time, not coerced.
type AnalysisOptions struct {
	EnablePrivacy        bool                `json:"enable_privacy"`
	EnableQuality        bool                `json:"enable_quality"`
	EnableTemporal       bool                `json:"enable_temporal"`
	EnableVisualizations bool                `json:"enable_visualizations"`
	CustomTopicPatterns  map[string][]string `json:"custom_topic_patterns,omitempty"`
}

// DefaultAnalysisOptions mirrors the defaults applied when a submission
// omits options entirely.
func DefaultAnalysisOptions() AnalysisOptions {
	return AnalysisOptions{
		EnablePrivacy:  true,
		EnableQuality:  true,
		EnableTemporal: true,
	}
}

// Validate compiles every custom topic pattern so a bad regex fails the
// submission instead of a running job.
func (o AnalysisOptions) Validate() error {
	for category, patterns := range o.CustomTopicPatterns {
		if category == "" {
			return fmt.Errorf("custom topic category name must not be empty")
		}
		for _, p := range patterns {
			if _, err := regexp.Compile(p); err != nil {
				return fmt.Errorf("invalid pattern %q in category %q: %w", p, category, err)
			}
		}
	}
	return nil
}

// Hash returns a stable digest over the options, used with the archive
// content hash as the cache and dedup key.
func (o AnalysisOptions) Hash() string {
	canon := struct {
		Privacy        bool       `json:"p"`
		Quality        bool       `json:"q"`
		Temporal       bool       `json:"t"`
		Visualizations bool       `json:"v"`
		Custom         [][]string `json:"c,omitempty"`
	}{
		Privacy:        o.EnablePrivacy,
		Quality:        o.EnableQuality,
		Temporal:       o.EnableTemporal,
		Visualizations: o.EnableVisualizations,
	}
	categories := make([]string, 0, len(o.CustomTopicPatterns))
	for category := range o.CustomTopicPatterns {
		categories = append(categories, category)
	}
	sort.Strings(categories)
	for _, category := range categories {
		row := append([]string{category}, o.CustomTopicPatterns[category]...)
		canon.Custom = append(canon.Custom, row)
	}
	data, _ := json.Marshal(canon)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ToJSONB stores the options alongside jobs and cache entries so both are
// self-describing.
func (o AnalysisOptions) ToJSONB() JSONB {
	data, _ := json.Marshal(o)
	var m JSONB
	_ = json.Unmarshal(data, &m)
	return m
}
