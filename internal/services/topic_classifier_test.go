package services

import (
	"testing"
)

func TestTopicClassifyBuiltins(t *testing.T) {
	tc, err := NewTopicClassifier(nil)
	if err != nil {
		t.Fatalf("NewTopicClassifier failed: %v", err)
	}

	tests := []struct {
		text  string
		topic string
	}{
		{"my code has a bug in this function", "Programming"},
		{"the react frontend won't render", "Web Development"},
		{"load the dataset into a dataframe", "Data Analysis"},
		{"the model keeps overfitting during training", "Machine Learning"},
		{"deploy the container to kubernetes", "DevOps"},
		{"this sql query needs an index", "Databases"},
		{"proofread my essay draft", "Writing"},
		{"the invoice is over budget", "Business"},
		{"explain this homework problem", "Education"},
		{"the experiment contradicts the hypothesis", "Science"},
		{"my sleep and diet are off", "Health"},
		{"the plot needs a stronger character", "Creative"},
		{"review my resume before the interview", "Career"},
		{"is this gdpr compliance relevant", "Legal"},
	}

	for _, tt := range tests {
		topics := tc.Classify(tt.text)
		found := false
		for _, topic := range topics {
			if topic == tt.topic {
				found = true
			}
		}
		if !found {
			t.Errorf("Classify(%q) = %v, want it to include %q", tt.text, topics, tt.topic)
		}
	}
}

func TestTopicClassifyMultiLabel(t *testing.T) {
	tc, _ := NewTopicClassifier(nil)

	topics := tc.Classify("debug the sql query in my python code")
	if len(topics) < 2 {
		t.Errorf("expected multiple topics, got %v", topics)
	}
}

func TestTopicClassifyFallback(t *testing.T) {
	tc, _ := NewTopicClassifier(nil)

	topics := tc.Classify("what a lovely afternoon")
	if len(topics) != 1 || topics[0] != TopicUncategorized {
		t.Errorf("expected [%s], got %v", TopicUncategorized, topics)
	}
}

func TestTopicClassifyWordBoundaries(t *testing.T) {
	tc, _ := NewTopicClassifier(nil)

	// "api" must not match inside "rapid"
	topics := tc.Classify("rapid progress on the garden")
	if len(topics) != 1 || topics[0] != TopicUncategorized {
		t.Errorf("keyword matched inside a larger word: %v", topics)
	}
}

func TestTopicClassifyCustomCategories(t *testing.T) {
	tc, err := NewTopicClassifier(map[string][]string{
		"Gardening": {`\btomato(es)?\b`, `\bcompost\b`},
	})
	if err != nil {
		t.Fatalf("NewTopicClassifier failed: %v", err)
	}

	topics := tc.Classify("my tomatoes need more compost")
	found := false
	for _, topic := range topics {
		if topic == "Gardening" {
			found = true
		}
	}
	if !found {
		t.Errorf("custom category did not match: %v", topics)
	}
}

func TestTopicClassifyDeterministicOrder(t *testing.T) {
	custom := map[string][]string{
		"Zeta":  {`\bzeta\b`},
		"Alpha": {`\balpha\b`},
	}

	var first []string
	for i := 0; i < 5; i++ {
		tc, err := NewTopicClassifier(custom)
		if err != nil {
			t.Fatalf("NewTopicClassifier failed: %v", err)
		}
		topics := tc.Classify("alpha and zeta both appear")
		if first == nil {
			first = topics
			continue
		}
		if len(topics) != len(first) {
			t.Fatalf("label count changed between runs: %v vs %v", first, topics)
		}
		for j := range topics {
			if topics[j] != first[j] {
				t.Fatalf("label order changed between runs: %v vs %v", first, topics)
			}
		}
	}
}
