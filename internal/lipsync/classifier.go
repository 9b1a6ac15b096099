package lipsync

import (
	"strings"

	"github.com/rs/zerolog"
)

// PhonemeEntry is one row of the direct-lookup table.
type PhonemeEntry struct {
	Symbol string
	Viseme Viseme
}

// DefaultPhonemeTable maps ARPAbet symbols to visemes. Order matters: it is
// the tie-break order for nearest-match fallback.
var DefaultPhonemeTable = []PhonemeEntry{
	{"AA", VisemeOpenVowel}, {"AO", VisemeOpenVowel}, {"AH", VisemeOpenVowel},
	{"IY", VisemeWideVowel}, {"IH", VisemeWideVowel}, {"EY", VisemeWideVowel}, {"EH", VisemeWideVowel},
	{"UW", VisemeRoundVowel}, {"UH", VisemeRoundVowel}, {"OW", VisemeRoundVowel},
	{"F", VisemeLabiodental}, {"V", VisemeLabiodental},
	{"TH", VisemeDental}, {"DH", VisemeDental},
	{"M", VisemeBilabial}, {"B", VisemeBilabial}, {"P", VisemeBilabial},
	{"S", VisemeSibilant}, {"Z", VisemeSibilant}, {"SH", VisemeSibilant}, {"CH", VisemeSibilant}, {"JH", VisemeSibilant},
	{"W", VisemeRoundVowel},
	{"R", VisemeRhotic},
	{"L", VisemeLateral},
	{"D", VisemeAlveolarVoiced},
	{"T", VisemeAlveolarUnvoiced},
	{"N", VisemeNasal},
	{"G", VisemeVelar},
	{"K", VisemeVelar},
	{"Y", VisemePalatal},
	{"AE", VisemeOpenVowel}, {"AW", VisemeOpenVowel}, {"AY", VisemeOpenVowel}, {"HH", VisemeOpenVowel},
	{"OY", VisemeRoundVowel},
	{"ER", VisemeRhotic},
	{"NG", VisemeNasal},
	{"ZH", VisemeSibilant},
}

// Classifier maps phonetic symbols onto the viseme set. It is safe for
// concurrent use once built.
type Classifier struct {
	entries []PhonemeEntry
	index   map[string]Viseme
	logger  zerolog.Logger
	metrics *Metrics
}

// NewClassifier indexes table, or DefaultPhonemeTable when table is nil.
func NewClassifier(table []PhonemeEntry, logger zerolog.Logger, metrics *Metrics) *Classifier {
	if table == nil {
		table = DefaultPhonemeTable
	}
	c := &Classifier{
		entries: make([]PhonemeEntry, 0, len(table)),
		index:   make(map[string]Viseme, len(table)),
		logger:  logger.With().Str("component", "classifier").Logger(),
		metrics: metrics,
	}
	for _, e := range table {
		key := normalizeSymbol(e.Symbol)
		if _, dup := c.index[key]; dup {
			continue
		}
		c.entries = append(c.entries, PhonemeEntry{Symbol: key, Viseme: e.Viseme})
		c.index[key] = e.Viseme
	}
	return c
}

// Classify never fails: unknown symbols take the viseme of the nearest table
// key by edit distance, first minimum in table order.
func (c *Classifier) Classify(symbol string) Viseme {
	key := normalizeSymbol(symbol)
	if v, ok := c.index[key]; ok {
		return v
	}

	v, nearest, dist := c.nearest(key)
	c.metrics.classifierFallback()
	c.logger.Debug().
		Str("symbol", symbol).
		Str("nearest", nearest).
		Int("distance", dist).
		Str("viseme", v.String()).
		Msg("Unrecognized symbol, using nearest match")
	return v
}

// ClassifyAll classifies each symbol in order.
func (c *Classifier) ClassifyAll(symbols []string) []Viseme {
	out := make([]Viseme, len(symbols))
	for i, s := range symbols {
		out[i] = c.Classify(s)
	}
	return out
}

// Entries returns the normalised lookup table in tie-break order.
func (c *Classifier) Entries() []PhonemeEntry {
	out := make([]PhonemeEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

func (c *Classifier) nearest(key string) (Viseme, string, int) {
	if len(c.entries) == 0 {
		return VisemeOpenVowel, "", -1
	}
	best := c.entries[0]
	bestDist := levenshtein(key, best.Symbol)
	for _, e := range c.entries[1:] {
		if d := levenshtein(key, e.Symbol); d < bestDist {
			best, bestDist = e, d
		}
	}
	return best.Viseme, best.Symbol, bestDist
}

// normalizeSymbol upper-cases and drops an ARPAbet stress marker (AA1 -> AA).
func normalizeSymbol(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if n := len(s); n > 1 {
		switch s[n-1] {
		case '0', '1', '2':
			s = s[:n-1]
		}
	}
	return s
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
