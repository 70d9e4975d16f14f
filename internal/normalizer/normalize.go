package normalizer

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/example/recycle-points/internal/material"
)

const (
	// DefaultConfidence is assigned when the response carries no confidence.
	DefaultConfidence = 50
	// UncertainThreshold marks classifications below it as uncertain.
	UncertainThreshold = 20
)

// Normalize parses raw and validates the result. Identical input always
// yields an identical classification.
func Normalize(raw string) material.Classification {
	return Parse(raw).Classify()
}

// Classify validates parsed fields against the canonical vocabulary and
// numeric ranges.
func (p ParseResult) Classify() material.Classification {
	f := p.Fields

	c := material.Classification{
		Type:        MatchMaterial(f.Material),
		RICCode:     validRIC(f.RIC),
		Confidence:  DefaultConfidence,
		Description: f.Description,
	}

	if conf, ok := confidenceFrom(f.Confidence); ok {
		c.Confidence = conf
	}

	if f.Recyclable != nil {
		c.Recyclable = *f.Recyclable
	} else {
		c.Recyclable = c.Type.Known()
	}

	c.Uncertain = c.Confidence < UncertainThreshold || !c.Type.Known()
	return c
}

func validRIC(literal string) *int {
	literal = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(literal), "#"))
	if literal == "" {
		return nil
	}
	v, err := strconv.ParseFloat(literal, 64)
	if err != nil || v != math.Trunc(v) || v < material.MinRIC || v > material.MaxRIC {
		return nil
	}
	code := int(v)
	return &code
}

// confidenceFrom accepts "85", "85%", "85.4" and fractions such as "0.85".
func confidenceFrom(literal string) (int, bool) {
	literal = strings.TrimSpace(literal)
	percent := strings.HasSuffix(literal, "%")
	literal = strings.TrimSpace(strings.TrimSuffix(literal, "%"))
	if literal == "" {
		return 0, false
	}

	v, err := strconv.ParseFloat(literal, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	if !percent && strings.Contains(literal, ".") && v >= 0 && v <= 1 {
		v *= 100
	}

	v = math.Round(v)
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	return int(v), true
}

type synonym struct {
	word     string
	material material.Type
}

// Longer, more specific words are listed next to the short ones they
// contain; MatchMaterial breaks position ties by length.
var synonyms = []synonym{
	{"aluminum", material.Aluminum},
	{"aluminium", material.Aluminum},
	{"alu", material.Aluminum},
	{"foil", material.Aluminum},

	{"cardboard", material.Cardboard},
	{"card board", material.Cardboard},
	{"corrugated", material.Cardboard},
	{"paperboard", material.Cardboard},
	{"boxboard", material.Cardboard},
	{"carton", material.Cardboard},

	{"paper", material.Paper},
	{"newsprint", material.Paper},
	{"magazine", material.Paper},

	{"glass", material.Glass},

	{"metal", material.Metal},
	{"steel", material.Metal},
	{"tin", material.Metal},
	{"iron", material.Metal},
	{"copper", material.Metal},
	{"brass", material.Metal},

	{"plastic", material.Plastic},
	{"polyethylene", material.Plastic},
	{"polypropylene", material.Plastic},
	{"polystyrene", material.Plastic},
	{"polycarbonate", material.Plastic},
	{"styrofoam", material.Plastic},
	{"acrylic", material.Plastic},
	{"nylon", material.Plastic},
	{"pete", material.Plastic},
	{"pet", material.Plastic},
	{"hdpe", material.Plastic},
	{"ldpe", material.Plastic},
	{"pvc", material.Plastic},
	{"pp", material.Plastic},
	{"ps", material.Plastic},
}

// MatchMaterial maps free text onto the canonical vocabulary. The synonym
// occurring earliest wins; unmatched text is material.Unknown.
func MatchMaterial(text string) material.Type {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return material.Unknown
	}

	result := material.Unknown
	bestPos, bestLen := -1, 0
	for _, s := range synonyms {
		pos := indexSynonym(text, s.word)
		if pos < 0 {
			continue
		}
		if bestPos < 0 || pos < bestPos || (pos == bestPos && len(s.word) > bestLen) {
			result, bestPos, bestLen = s.material, pos, len(s.word)
		}
	}
	return result
}

// indexSynonym finds word in text. Short words must stand alone so that
// "pet" does not match "carpet".
func indexSynonym(text, word string) int {
	if utf8.RuneCountInString(word) > 4 {
		return strings.Index(text, word)
	}
	for from := 0; from < len(text); {
		i := strings.Index(text[from:], word)
		if i < 0 {
			return -1
		}
		i += from
		if wordBoundary(text, i-1) && wordBoundary(text, i+len(word)) {
			return i
		}
		from = i + 1
	}
	return -1
}

func wordBoundary(text string, pos int) bool {
	if pos < 0 || pos >= len(text) {
		return true
	}
	c := text[pos]
	return !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9')
}
