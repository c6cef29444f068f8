package moratorium

import (
	_ "embed"
	"os"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/claimclaw/contest-cli/internal/model"
)

//go:embed lexicon.yaml
var defaultLexiconYAML []byte

// Lexicon holds the keyword sets used to classify free-text rejection reasons.
type Lexicon struct {
	NonDisclosure []string `yaml:"non_disclosure"`
	Other         []string `yaml:"other"`
	Fraud         []string `yaml:"fraud"`
}

// Classifier maps a free-text rejection reason to a ReasonCategory and a
// fraud-allegation flag. Classification is deterministic: it depends only on
// the lexicon and the input text.
type Classifier struct {
	lexicon Lexicon
}

// NewClassifier builds a classifier from an explicit lexicon.
func NewClassifier(lexicon Lexicon) *Classifier {
	return &Classifier{lexicon: lexicon}
}

// LoadClassifier reads a YAML lexicon from disk.
func LoadClassifier(path string) (*Classifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "moratorium: read lexicon %s", path)
	}
	var lex Lexicon
	if err := yaml.Unmarshal(data, &lex); err != nil {
		return nil, eris.Wrapf(err, "moratorium: parse lexicon %s", path)
	}
	return &Classifier{lexicon: lex}, nil
}

var (
	defaultClassifierOnce sync.Once
	defaultClassifier     *Classifier
)

// DefaultClassifier returns the classifier built from the embedded lexicon.
func DefaultClassifier() *Classifier {
	defaultClassifierOnce.Do(func() {
		var lex Lexicon
		if err := yaml.Unmarshal(defaultLexiconYAML, &lex); err != nil {
			// The embedded lexicon is compiled in; a parse failure is a
			// programming error.
			panic(eris.Wrap(err, "moratorium: embedded lexicon"))
		}
		defaultClassifier = &Classifier{lexicon: lex}
	})
	return defaultClassifier
}

// Classify returns the rejection-reason category and whether the text itself
// alleges fraud. Empty or unrecognizable text is uncategorized.
func (c *Classifier) Classify(reason string) (model.ReasonCategory, bool) {
	lowered := strings.ToLower(strings.TrimSpace(reason))
	fraud := containsAny(lowered, c.lexicon.Fraud)
	if lowered == "" {
		return model.ReasonUncategorized, fraud
	}
	if containsAny(lowered, c.lexicon.NonDisclosure) {
		return model.ReasonNonDisclosure, fraud
	}
	if containsAny(lowered, c.lexicon.Other) {
		return model.ReasonOther, fraud
	}
	return model.ReasonUncategorized, fraud
}

func containsAny(text string, tokens []string) bool {
	for _, token := range tokens {
		if token != "" && strings.Contains(text, token) {
			return true
		}
	}
	return false
}
