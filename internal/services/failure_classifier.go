package services

import (
	"regexp"
	"strings"

	"github.com/convoscope/backend/internal/models"
)

// Failure finding types. Severity is a fixed function of the type.
const (
	FailureContextLoss         = "context_loss"
	FailureIgnoredInstructions = "ignored_instructions"
	FailurePerformanceTheater  = "performance_theater"
	FailurePrematureConclusion = "premature_conclusion"
	FailureFabricatedReference = "fabricated_reference"
	FailureRepetition          = "repetition"
	FailureExcessiveApology    = "excessive_apology"
	FailureScopeCreep          = "scope_creep"
	FailureIncompleteResponse  = "incomplete_response"
	FailureVerbosePreamble     = "verbose_preamble"
	FailureUnnecessaryCaveat   = "unnecessary_caveat"
)

var failureSeverity = map[string]string{
	FailureContextLoss:         models.SeverityHigh,
	FailureIgnoredInstructions: models.SeverityHigh,
	FailurePerformanceTheater:  models.SeverityHigh,
	FailurePrematureConclusion: models.SeverityHigh,
	FailureFabricatedReference: models.SeverityHigh,
	FailureRepetition:          models.SeverityMedium,
	FailureExcessiveApology:    models.SeverityMedium,
	FailureScopeCreep:          models.SeverityMedium,
	FailureIncompleteResponse:  models.SeverityMedium,
	FailureVerbosePreamble:     models.SeverityLow,
	FailureUnnecessaryCaveat:   models.SeverityLow,
}

// SeverityForFailure returns the fixed severity for a finding type.
func SeverityForFailure(failureType string) string {
	return failureSeverity[failureType]
}

// Detection thresholds. Tunables, not contract.
const (
	repetitionNgramSize    = 3
	repetitionMinWords     = 20
	repetitionOverlapRatio = 0.6
	apologyThreshold       = 2
)

var (
	contextLossCues = []string{
		"remind me", "could you share that again", "could you provide that again",
		"what was the", "i don't see the", "can you paste it again",
		"i don't have access to the previous",
	}
	performanceTheaterCues = []string{
		"i've tested", "i have tested", "i ran the", "i've run the",
		"i've deployed", "i executed", "i've verified this works",
		"all tests pass",
	}
	prematureConclusionCues = []string{
		"this should work", "that should fix", "should now work",
		"should work now", "this will fix",
	}
	fabricatedReferenceCues = []string{
		"according to the documentation", "the docs state",
		"per the official docs", "as documented in", "the documentation says",
	}
	scopeCreepCues = []string{
		"i also went ahead", "i've also added", "i also added",
		"additionally, i added", "while i was at it", "i took the liberty",
	}
	verbosePreambleCues = []string{
		"certainly!", "great question", "of course!", "absolutely!",
		"i'd be happy to",
	}
	unnecessaryCaveatCues = []string{
		"as an ai", "as a language model", "i'm just an ai",
		"i cannot browse the internet",
	}
	problemReportCues = []string{
		"error", "doesn't work", "does not work", "not working", "failed",
		"broken", "exception", "crash",
	}
	directiveRe = regexp.MustCompile(`(?i)\b(?:do not|don't|avoid|stop|never)\s+(?:using\s+|use\s+)?([a-zA-Z][a-zA-Z0-9_.-]{2,})`)
)

// FailureClassifier evaluates eleven independent detector rules against an
// assistant turn with its conversation context up to that point. Each rule
// yields at most one finding per message.
type FailureClassifier struct{}

func NewFailureClassifier() *FailureClassifier {
	return &FailureClassifier{}
}

// Detect returns the findings for the message at idx. Only assistant turns
// are evaluated; findings come back in fixed detector order.
func (fc *FailureClassifier) Detect(messages []models.Message, idx int) []models.FailureFinding {
	msg := messages[idx]
	if msg.Role != models.RoleAssistant {
		return nil
	}
	lower := strings.ToLower(msg.Text)

	var findings []models.FailureFinding
	add := func(failureType, evidence string) {
		findings = append(findings, models.FailureFinding{
			Type:     failureType,
			Severity: failureSeverity[failureType],
			Evidence: evidence,
		})
	}

	priorUserTurns := 0
	for i := 0; i < idx; i++ {
		if messages[i].Role == models.RoleUser {
			priorUserTurns++
		}
	}

	if priorUserTurns >= 2 {
		if cue := firstCue(lower, contextLossCues); cue != "" {
			add(FailureContextLoss, cue)
		}
	}

	if idx > 0 && messages[idx-1].Role == models.RoleUser {
		prevLower := strings.ToLower(messages[idx-1].Text)
		if m := directiveRe.FindStringSubmatch(prevLower); m != nil {
			forbidden := m[1]
			if containsWord(lower, forbidden) {
				add(FailureIgnoredInstructions, "directive ignored: "+forbidden)
			}
		}
	}

	if cue := firstCue(lower, performanceTheaterCues); cue != "" {
		add(FailurePerformanceTheater, cue)
	}

	if idx > 0 && messages[idx-1].Role == models.RoleUser {
		prevLower := strings.ToLower(messages[idx-1].Text)
		if firstCue(prevLower, problemReportCues) != "" && !strings.Contains(msg.Text, "```") {
			if cue := firstCue(lower, prematureConclusionCues); cue != "" {
				add(FailurePrematureConclusion, cue)
			}
		}
	}

	if cue := firstCue(lower, fabricatedReferenceCues); cue != "" {
		add(FailureFabricatedReference, cue)
	}

	if evidence := fc.detectRepetition(messages, idx, lower); evidence != "" {
		add(FailureRepetition, evidence)
	}

	apologies := strings.Count(lower, "sorry") + strings.Count(lower, "apolog")
	if apologies >= apologyThreshold {
		add(FailureExcessiveApology, "repeated apologies")
	}

	if cue := firstCue(lower, scopeCreepCues); cue != "" {
		add(FailureScopeCreep, cue)
	}

	trimmed := strings.TrimSpace(msg.Text)
	if strings.Count(trimmed, "```")%2 == 1 {
		add(FailureIncompleteResponse, "unterminated code block")
	} else if strings.HasSuffix(trimmed, ":") {
		add(FailureIncompleteResponse, "response ends mid-thought")
	}

	for _, cue := range verbosePreambleCues {
		if strings.HasPrefix(lower, cue) {
			add(FailureVerbosePreamble, cue)
			break
		}
	}

	if cue := firstCue(lower, unnecessaryCaveatCues); cue != "" {
		add(FailureUnnecessaryCaveat, cue)
	}

	return findings
}

// detectRepetition reports n-gram overlap with any prior assistant turn in
// the same conversation above the configured ratio.
func (fc *FailureClassifier) detectRepetition(messages []models.Message, idx int, lower string) string {
	words := strings.Fields(lower)
	if len(words) < repetitionMinWords {
		return ""
	}
	grams := ngramSet(words, repetitionNgramSize)
	if len(grams) == 0 {
		return ""
	}

	for i := 0; i < idx; i++ {
		if messages[i].Role != models.RoleAssistant {
			continue
		}
		prior := ngramSet(strings.Fields(strings.ToLower(messages[i].Text)), repetitionNgramSize)
		if len(prior) == 0 {
			continue
		}
		shared := 0
		for g := range grams {
			if prior[g] {
				shared++
			}
		}
		if float64(shared)/float64(len(grams)) >= repetitionOverlapRatio {
			return "overlaps earlier reply " + messages[i].ID
		}
	}
	return ""
}

func ngramSet(words []string, n int) map[string]bool {
	if len(words) < n {
		return nil
	}
	set := make(map[string]bool, len(words)-n+1)
	for i := 0; i+n <= len(words); i++ {
		set[strings.Join(words[i:i+n], " ")] = true
	}
	return set
}

func firstCue(lower string, cues []string) string {
	for _, cue := range cues {
		if strings.Contains(lower, cue) {
			return cue
		}
	}
	return ""
}

func containsWord(lower, word string) bool {
	re, err := regexp.Compile(`\b` + regexp.QuoteMeta(strings.ToLower(word)) + `\b`)
	if err != nil {
		return false
	}
	return re.MatchString(lower)
}
