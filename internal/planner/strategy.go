package planner

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// strategyOrder fixes iteration/tie-break order: first strategy in this
// list wins a tie.
var strategyOrder = []Strategy{FileBased, FeatureBased, RiskBased, ResearchBased}

// keywordSets lists the terms that count as evidence for each strategy.
// Multi-word entries are matched by substring; single words are matched as
// whole words (case-insensitive).
var keywordSets = map[Strategy][]string{
	FileBased: {
		"file", "files", "module", "package", "directory", "folder",
		"per file", "file by file", "rename", "move file",
	},
	FeatureBased: {
		"feature", "capability", "user story", "end to end", "end-to-end",
		"workflow", "functionality", "use case",
	},
	RiskBased: {
		"risk", "security", "vulnerability", "critical", "compliance",
		"audit", "breaking change", "data loss", "regression",
	},
	ResearchBased: {
		"research", "investigate", "explore", "spike", "prototype",
		"unknown", "feasibility", "proof of concept", "evaluate options",
	},
}

var wordBoundaryCache = make(map[string]*regexp.Regexp)

func wholeWordRegexp(word string) *regexp.Regexp {
	if re, ok := wordBoundaryCache[word]; ok {
		return re
	}
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(word) + `\b`)
	wordBoundaryCache[word] = re
	return re
}

// SelectStrategy scores each strategy's keyword set against task and
// returns the winner with a confidence derived from its margin over the
// runner-up.
func SelectStrategy(task string) SelectionResult {
	lower := strings.ToLower(task)

	scores := make(map[Strategy]int, len(strategyOrder))
	matched := make(map[Strategy][]string, len(strategyOrder))

	for _, strat := range strategyOrder {
		for _, kw := range keywordSets[strat] {
			var hit bool
			if strings.Contains(kw, " ") {
				hit = strings.Contains(lower, kw)
			} else {
				hit = wholeWordRegexp(kw).MatchString(lower)
			}
			if hit {
				scores[strat]++
				matched[strat] = append(matched[strat], kw)
			}
		}
	}

	total := 0
	for _, s := range scores {
		total += s
	}

	alternatives := make([]StrategyScore, 0, len(strategyOrder))
	for _, strat := range strategyOrder {
		alternatives = append(alternatives, StrategyScore{Strategy: strat, Score: scores[strat]})
	}
	sort.SliceStable(alternatives, func(i, j int) bool {
		return alternatives[i].Score > alternatives[j].Score
	})

	if total == 0 {
		return SelectionResult{
			Strategy:     FeatureBased,
			Confidence:   0.5,
			Reasoning:    "no strategy keywords matched; defaulting to feature-based",
			Alternatives: alternatives,
		}
	}

	winner := alternatives[0]
	runnerUp := 0
	if len(alternatives) > 1 {
		runnerUp = alternatives[1].Score
	}

	confidence := 0.5 + float64(winner.Score-runnerUp)/float64(total)
	if confidence > 0.95 {
		confidence = 0.95
	}

	reasoning := fmt.Sprintf("matched keywords for %s: %s", winner.Strategy, strings.Join(matched[winner.Strategy], ", "))

	return SelectionResult{
		Strategy:     winner.Strategy,
		Confidence:   confidence,
		Reasoning:    reasoning,
		Alternatives: alternatives,
	}
}
