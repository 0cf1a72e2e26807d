package planner

import (
	"regexp"
	"strconv"
	"strings"
)

var positiveKeywords = []string{"always", "must", "required", "ensure", "use", "prefer"}
var negativeKeywords = []string{"never", "don't", "dont", "avoid", "forbid", "no ", "not "}

var sentenceSplitRe = regexp.MustCompile(`[.!?]+`)
var tokenRe = regexp.MustCompile(`[a-z0-9]+`)

type polarity int

const (
	polarityNone polarity = iota
	polarityPositive
	polarityNegative
)

// directive is one classified sentence from a subtask's title/description.
type directive struct {
	subtaskIndex int
	sentence     string
	polarity     polarity
	tokens       map[string]bool
}

// ValidatePlan checks a proposed BeadTree for file exclusivity,
// forward-reference freedom, and (as non-blocking warnings) instruction
// conflicts between subtask directives.
func ValidatePlan(tree BeadTree) ValidationResult {
	if err, details := checkFileExclusivity(tree.Subtasks); err != "" {
		return ValidationResult{Valid: false, Error: err, Details: details}
	}
	if err, details := checkDependencyBounds(tree.Subtasks); err != "" {
		return ValidationResult{Valid: false, Error: err, Details: details}
	}

	warnings := detectInstructionConflicts(tree.Subtasks)

	totalFiles := 0
	totalComplexity := 0
	for _, st := range tree.Subtasks {
		totalFiles += len(st.Files)
		totalComplexity += st.EstimatedComplexity
	}

	return ValidationResult{
		Valid: true,
		BeadTree: &tree,
		Stats: Stats{
			SubtaskCount:    len(tree.Subtasks),
			TotalFiles:      totalFiles,
			TotalComplexity: totalComplexity,
		},
		Warnings: warnings,
	}
}

// checkFileExclusivity rejects plans where a file appears in more than one
// subtask's files list (P1).
func checkFileExclusivity(subtasks []Subtask) (string, string) {
	owner := make(map[string]int)
	for i, st := range subtasks {
		for _, f := range st.Files {
			if prev, ok := owner[f]; ok {
				return "file_conflict", f + " appears in subtasks " + strconv.Itoa(prev) + " and " + strconv.Itoa(i)
			}
			owner[f] = i
		}
	}
	return "", ""
}

// checkDependencyBounds rejects out-of-bounds or forward-referencing
// dependency indices (P2, P3).
func checkDependencyBounds(subtasks []Subtask) (string, string) {
	for i, st := range subtasks {
		for _, dep := range st.Dependencies {
			if dep < 0 || dep >= len(subtasks) {
				return "dependency_out_of_bounds", "subtask " + strconv.Itoa(i) + " references out-of-bounds index " + strconv.Itoa(dep)
			}
			if dep >= i {
				return "forward_reference", "subtask " + strconv.Itoa(i) + " depends on index " + strconv.Itoa(dep) + " which is not strictly earlier"
			}
		}
	}
	return "", ""
}

// detectInstructionConflicts extracts directives from every subtask's
// title ∥ description and reports pairs from different subtasks that share
// ≥ 2 significant tokens with opposite polarity.
func detectInstructionConflicts(subtasks []Subtask) []InstructionConflict {
	var directives []directive
	for i, st := range subtasks {
		text := st.Title + ". " + st.Description
		for _, sentence := range sentenceSplitRe.Split(text, -1) {
			s := strings.TrimSpace(sentence)
			if s == "" {
				continue
			}
			d := classify(i, s)
			if d.polarity != polarityNone {
				directives = append(directives, d)
			}
		}
	}

	var conflicts []InstructionConflict
	for a := 0; a < len(directives); a++ {
		for b := a + 1; b < len(directives); b++ {
			da, db := directives[a], directives[b]
			if da.subtaskIndex == db.subtaskIndex {
				continue
			}
			if da.polarity == db.polarity {
				continue
			}
			shared := sharedTokens(da.tokens, db.tokens)
			if len(shared) >= 2 {
				conflicts = append(conflicts, InstructionConflict{
					SubtaskA: da.subtaskIndex, SubtaskB: db.subtaskIndex,
					TokenA: da.sentence, TokenB: db.sentence,
					Detail: "conflicting directives share tokens: " + strings.Join(shared, ", "),
				})
			}
		}
	}
	return conflicts
}

func classify(subtaskIndex int, sentence string) directive {
	lower := strings.ToLower(sentence)

	hasNegative := false
	for _, kw := range negativeKeywords {
		if strings.Contains(lower, kw) {
			hasNegative = true
			break
		}
	}

	hasPositive := false
	for _, kw := range positiveKeywords {
		if wholeWordRegexp(kw).MatchString(lower) {
			hasPositive = true
			break
		}
	}

	p := polarityNone
	switch {
	case hasNegative:
		p = polarityNegative
	case hasPositive:
		p = polarityPositive
	}

	return directive{
		subtaskIndex: subtaskIndex,
		sentence:     sentence,
		polarity:     p,
		tokens:       significantTokens(lower),
	}
}

// significantTokens returns the set of tokens with length > 3, excluding
// the classification keywords themselves so conflicts are driven by
// subject matter, not by the directive markers.
func significantTokens(lower string) map[string]bool {
	out := make(map[string]bool)
	for _, tok := range tokenRe.FindAllString(lower, -1) {
		if len(tok) <= 3 {
			continue
		}
		if isClassificationKeyword(tok) {
			continue
		}
		out[tok] = true
	}
	return out
}

func isClassificationKeyword(tok string) bool {
	for _, kw := range positiveKeywords {
		if kw == tok {
			return true
		}
	}
	for _, kw := range negativeKeywords {
		if strings.TrimSpace(kw) == tok {
			return true
		}
	}
	return false
}

func sharedTokens(a, b map[string]bool) []string {
	var out []string
	for tok := range a {
		if b[tok] {
			out = append(out, tok)
		}
	}
	return out
}

