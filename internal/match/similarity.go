package match

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/network-cli/internal/model"
)

var foldCaser = cases.Fold()

// tokenize lowercases via Unicode case folding, normalizes to NFKC, and
// splits on anything that is not a letter or digit. "Seed Funding $2-3M"
// becomes [seed funding 2 3m].
func tokenize(s string) []string {
	folded := foldCaser.String(norm.NFKC.String(s))
	return strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// significant filters tokens down to words long enough to carry meaning.
// Short tokens ("to", "a", "$2") are connective noise.
func significant(tokens []string) []string {
	out := tokens[:0:0]
	for _, t := range tokens {
		if len([]rune(t)) > 3 {
			out = append(out, t)
		}
	}
	return out
}

// similarity scores how well an offering answers a need, in [0,1].
// Phrase containment is the strongest textual signal; otherwise the score
// is the shared-significant-word ratio. Category agreement and overlapping
// quantified ranges add flat bonuses.
func similarity(need model.NeedItem, off model.OfferingItem) float64 {
	needPhrase := strings.Join(tokenize(need.Text), " ")
	offPhrase := strings.Join(tokenize(off.Text), " ")
	if needPhrase == "" || offPhrase == "" {
		return 0
	}

	var base float64
	if strings.Contains(offPhrase, needPhrase) || strings.Contains(needPhrase, offPhrase) {
		base = 0.9
	} else {
		needSig := significant(tokenize(need.Text))
		offSig := significant(tokenize(off.Text))
		maxSig := len(needSig)
		if len(offSig) > maxSig {
			maxSig = len(offSig)
		}
		if maxSig == 0 {
			return 0
		}
		offSet := make(map[string]struct{}, len(offSig))
		for _, t := range offSig {
			offSet[t] = struct{}{}
		}
		shared := 0
		seen := make(map[string]struct{}, len(needSig))
		for _, t := range needSig {
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			if _, ok := offSet[t]; ok {
				shared++
			}
		}
		base = float64(shared) / float64(maxSig)
	}

	score := base
	if need.Category != "" && need.Category == off.Category {
		score += 0.25
	}
	if need.Quantifiable != nil && off.Quantifiable != nil && need.Quantifiable.Overlaps(*off.Quantifiable) {
		score += 0.2
	}
	if score > 1 {
		score = 1
	}
	return score
}
