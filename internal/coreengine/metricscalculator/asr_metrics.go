package metricscalculator

import (
	"fmt"
	"math"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// unitCost counts substitutions, insertions and deletions as one error each.
var unitCost = levenshtein.Options{
	InsCost: 1,
	DelCost: 1,
	SubCost: 1,
	Matches: levenshtein.IdenticalRunes,
}

// EditDistance returns the number of token substitutions, insertions and deletions
// needed to turn ref into hyp. Tokens are words for WER and phones for PER.
func EditDistance(ref, hyp []string) int {
	// levenshtein compares runes, so give every distinct token its own rune.
	vocab := make(map[string]rune)
	encode := func(tokens []string) []rune {
		out := make([]rune, len(tokens))
		for i, tok := range tokens {
			r, ok := vocab[tok]
			if !ok {
				r = rune(len(vocab))
				vocab[tok] = r
			}
			out[i] = r
		}
		return out
	}
	return levenshtein.DistanceForStrings(encode(ref), encode(hyp), unitCost)
}

// ErrorStats accumulates errors over a corpus.
type ErrorStats struct {
	Errors     int `json:"errors"`
	RefTokens  int `json:"ref_tokens"`
	Utterances int `json:"utterances"`
}

// Add scores one utterance.
func (s *ErrorStats) Add(ref, hyp []string) {
	s.Errors += EditDistance(ref, hyp)
	s.RefTokens += len(ref)
	s.Utterances++
}

// Rate returns the corpus error rate in percent, rounded to two decimals the way
// summary files print it.
func (s ErrorStats) Rate() (float64, error) {
	if s.RefTokens == 0 {
		return 0, fmt.Errorf("no reference tokens in %d utterances, cannot normalize error rate", s.Utterances)
	}
	rate := 100 * float64(s.Errors) / float64(s.RefTokens)
	return math.Round(rate*100) / 100, nil
}
