package services

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// TopicUncategorized is the fallback label; every message gets at least one
// topic.
const TopicUncategorized = "Uncategorized"

// builtinTopics is the fixed topic vocabulary. Categories are matched in
// this order and a message is tagged with every category that matches.
// Keywords deliberately overlap across categories; a message can belong to
// more than one topic.
var builtinTopics = []struct {
	name     string
	keywords []string
}{
	{"Programming", []string{
		"code", "function", "variable", "compile", "debug", "refactor",
		"algorithm", "bug", "syntax", "library", "api", "git", "repository",
		"unit test", "stack trace",
	}},
	{"Web Development", []string{
		"html", "css", "javascript", "typescript", "react", "frontend",
		"backend", "website", "browser", "http", "rest api", "dom", "webpack",
	}},
	{"Data Analysis", []string{
		"dataset", "dataframe", "pandas", "visualization", "chart", "csv",
		"statistics", "correlation", "aggregate", "spreadsheet", "pivot",
	}},
	{"Machine Learning", []string{
		"model", "training", "neural network", "classifier", "embedding",
		"fine-tune", "inference", "llm", "prompt", "overfitting", "accuracy",
	}},
	{"DevOps", []string{
		"docker", "kubernetes", "deploy", "pipeline", "ci/cd", "terraform",
		"container", "server", "nginx", "monitoring", "scaling", "aws",
	}},
	{"Databases", []string{
		"sql", "database", "query", "postgres", "mysql", "sqlite", "mongodb",
		"index", "schema", "migration", "transaction", "redis",
	}},
	{"Writing", []string{
		"essay", "draft", "edit", "proofread", "paragraph", "grammar",
		"rewrite", "summarize", "blog post", "article", "tone",
	}},
	{"Business", []string{
		"revenue", "budget", "invoice", "marketing", "customer", "startup",
		"pricing", "contract", "proposal", "stakeholder", "roadmap",
	}},
	{"Education", []string{
		"learn", "study", "course", "homework", "exam", "lecture", "tutorial",
		"explain", "teach", "practice problem", "quiz",
	}},
	{"Science", []string{
		"experiment", "hypothesis", "physics", "chemistry", "biology",
		"research paper", "theory", "measurement", "molecule", "quantum",
	}},
	{"Health", []string{
		"exercise", "diet", "sleep", "symptom", "doctor", "medication",
		"workout", "nutrition", "stress", "mental health",
	}},
	{"Creative", []string{
		"story", "poem", "character", "plot", "song", "lyrics", "design",
		"drawing", "novel", "worldbuilding", "brainstorm",
	}},
	{"Career", []string{
		"resume", "interview", "job", "salary", "promotion", "linkedin",
		"cover letter", "hiring", "career", "negotiation",
	}},
	{"Legal", []string{
		"legal", "lawyer", "lawsuit", "regulation", "compliance", "gdpr",
		"license", "liability", "terms of service", "copyright",
	}},
}

type topicCategory struct {
	name string
	re   *regexp.Regexp
}

// TopicClassifier tags messages with every matching category from the
// fixed vocabulary plus any user-supplied custom categories.
type TopicClassifier struct {
	categories []topicCategory
}

// NewTopicClassifier merges custom pattern lists (regular expressions,
// validated at submission) with the built-in vocabulary. Custom categories
// are ordered by name so classification stays deterministic.
func NewTopicClassifier(custom map[string][]string) (*TopicClassifier, error) {
	tc := &TopicClassifier{}

	for _, bt := range builtinTopics {
		escaped := make([]string, len(bt.keywords))
		for i, kw := range bt.keywords {
			escaped[i] = regexp.QuoteMeta(kw)
		}
		re := regexp.MustCompile(`(?i)\b(?:` + strings.Join(escaped, "|") + `)\b`)
		tc.categories = append(tc.categories, topicCategory{name: bt.name, re: re})
	}

	customNames := make([]string, 0, len(custom))
	for name := range custom {
		customNames = append(customNames, name)
	}
	sort.Strings(customNames)
	for _, name := range customNames {
		patterns := custom[name]
		if len(patterns) == 0 {
			continue
		}
		joined := "(?i)(?:" + strings.Join(patterns, ")|(?:") + ")"
		re, err := regexp.Compile(joined)
		if err != nil {
			return nil, fmt.Errorf("invalid custom patterns for category %q: %w", name, err)
		}
		tc.categories = append(tc.categories, topicCategory{name: name, re: re})
	}

	return tc, nil
}

// Classify returns every matching topic label, or the fallback label when
// nothing matches. Never returns an empty set.
func (tc *TopicClassifier) Classify(text string) []string {
	var topics []string
	for _, cat := range tc.categories {
		if cat.re.MatchString(text) {
			topics = append(topics, cat.name)
		}
	}
	if len(topics) == 0 {
		return []string{TopicUncategorized}
	}
	return topics
}
