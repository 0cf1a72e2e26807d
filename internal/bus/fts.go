package bus

import (
	"strings"
	"unicode"
)

// ftsIndex is a naive in-memory inverted index over tokenized subject+body
// text, used by the in-memory broker's search_messages. The durable
// SQLite adapter instead relies on an fts5 virtual table; this index
// exists because messages served out of memory have no SQL engine behind
// them to do full-text matching for us.
type ftsIndex struct {
	// token -> set of message ids containing that token
	postings map[string]map[string]bool
}

func newFTSIndex() *ftsIndex {
	return &ftsIndex{postings: make(map[string]map[string]bool)}
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func (f *ftsIndex) index(messageID, subject, body string) {
	for _, tok := range tokenize(subject + " " + body) {
		set, ok := f.postings[tok]
		if !ok {
			set = make(map[string]bool)
			f.postings[tok] = set
		}
		set[messageID] = true
	}
}

func (f *ftsIndex) remove(messageID string) {
	for _, set := range f.postings {
		delete(set, messageID)
	}
}

// search returns message ids matching all tokens in query (AND semantics),
// in no defined order (the ids come from map iteration).
func (f *ftsIndex) search(query string) []string {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return nil
	}

	var result map[string]bool
	for i, tok := range tokens {
		set := f.postings[tok]
		if i == 0 {
			result = make(map[string]bool, len(set))
			for id := range set {
				result[id] = true
			}
			continue
		}
		for id := range result {
			if !set[id] {
				delete(result, id)
			}
		}
	}

	out := make([]string, 0, len(result))
	for id := range result {
		out = append(out, id)
	}
	return out
}
