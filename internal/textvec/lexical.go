package textvec

// TokenSet is a set of normalised tokens.
type TokenSet map[string]struct{}

// Tokenize returns the distinct tokens of text.
func Tokenize(text string) TokenSet {
	set := TokenSet{}
	for _, token := range Tokens(text) {
		set[token] = struct{}{}
	}
	return set
}

// Union merges sets into a new set.
func Union(sets ...TokenSet) TokenSet {
	out := TokenSet{}
	for _, set := range sets {
		for token := range set {
			out[token] = struct{}{}
		}
	}
	return out
}

// Jaccard returns |a∩b| / |a∪b|, or 0 when either side is empty.
func Jaccard(a, b TokenSet) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	intersection := 0
	for token := range small {
		if _, ok := large[token]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

const (
	skillLexicalWeight = 0.65
	taskLexicalWeight  = 0.35
)

// BlendLexical mixes a skill's own lexical overlap with the overlap of the
// task context its historical scores come from.
func BlendLexical(skillLexical, taskLexical float64) float64 {
	return skillLexicalWeight*skillLexical + taskLexicalWeight*taskLexical
}
