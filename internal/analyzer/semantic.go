package analyzer

import (
	"fmt"
	"strings"
)

// SemanticScorer scores how likely the task with the first description is a
// prerequisite of the task with the second, based only on their free text.
// Implementations must be pure so alternative inference strategies can be
// swapped without touching the graph or scheduler.
type SemanticScorer interface {
	// Score returns a confidence in [0,1] and a human-readable reason.
	// A score of 0 means no edge.
	Score(prereqDescription, depDescription string) (float64, string)
}

// vocabularyTier pairs prerequisite vocabulary with dependent vocabulary at
// a fixed confidence. Tiers are checked in order; the first match wins.
type vocabularyTier struct {
	prereqWords []string
	depWords    []string
	confidence  float64
}

// DefaultSemanticScorer matches fixed keyword vocabularies between
// description pairs. Setup-like language in the prerequisite combined with
// build-like language in the dependent yields an edge; anything else scores 0.
type DefaultSemanticScorer struct{}

var semanticTiers = []vocabularyTier{
	{
		prereqWords: []string{"setup", "set up", "initialize", "install", "scaffold"},
		depWords:    []string{"implement", "build", "develop"},
		confidence:  0.8,
	},
	{
		prereqWords: []string{"configure", "define", "design", "create"},
		depWords:    []string{"implement", "build", "use", "extend", "integrate"},
		confidence:  0.7,
	},
	{
		prereqWords: []string{"implement", "build", "write"},
		depWords:    []string{"test", "verify", "validate", "document", "deploy"},
		confidence:  0.6,
	},
}

// Score implements SemanticScorer.
func (DefaultSemanticScorer) Score(prereqDescription, depDescription string) (float64, string) {
	pre := strings.ToLower(prereqDescription)
	dep := strings.ToLower(depDescription)
	if pre == "" || dep == "" {
		return 0, ""
	}

	for _, tier := range semanticTiers {
		preWord := firstContained(pre, tier.prereqWords)
		depWord := firstContained(dep, tier.depWords)
		if preWord != "" && depWord != "" {
			return tier.confidence, fmt.Sprintf("prerequisite mentions %q, dependent mentions %q", preWord, depWord)
		}
	}
	return 0, ""
}

func firstContained(text string, words []string) string {
	for _, w := range words {
		if strings.Contains(text, w) {
			return w
		}
	}
	return ""
}
