package bus

import "fmt"

// adjectives and nouns form the fixed vocabulary for deterministic
// adjective+noun agent name generation. Generation is a rolling index per
// project rather than math/rand, so registration stays pure and replayable
// in tests.
var adjectives = []string{
	"swift", "quiet", "bold", "calm", "eager", "keen", "steady", "bright",
	"sharp", "brisk", "wry", "sturdy", "nimble", "frank", "earnest", "tidy",
}

var nouns = []string{
	"falcon", "otter", "badger", "heron", "lynx", "sparrow", "marten",
	"tern", "wren", "finch", "beetle", "gecko", "ibis", "mole", "vole", "hare",
}

// generateAgentName deterministically derives an adjective+noun name from
// a rolling counter, wrapping through the adjective x noun product space.
func generateAgentName(counter int) string {
	adj := adjectives[counter%len(adjectives)]
	noun := nouns[(counter/len(adjectives))%len(nouns)]
	return fmt.Sprintf("%s-%s", adj, noun)
}
