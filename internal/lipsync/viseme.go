// Package lipsync turns phoneme timing data and a live audio clock into morph
// weight animation: symbols are classified into visemes, visemes are mapped to
// morph channels, and a tween animator eases those channels in and out while the
// synchronizer follows playback one frame at a time.
package lipsync

// Viseme is a visual mouth shape shared by acoustically similar phonemes.
type Viseme int

const (
	VisemeOpenVowel Viseme = iota // AA, AO, AH
	VisemeWideVowel               // IY, IH, EY, EH
	VisemeRoundVowel              // UW, UH, OW, W
	VisemeLabiodental             // F, V
	VisemeDental                  // TH, DH
	VisemeBilabial                // M, B, P
	VisemeSibilant                // S, Z, SH, CH, JH
	VisemeRhotic                  // R
	VisemeLateral                 // L
	VisemeAlveolarVoiced          // D
	VisemeAlveolarUnvoiced        // T
	VisemeNasal                   // N
	VisemeVelar                   // G, K
	VisemePalatal                 // Y
	visemeCount
)

var visemeNames = [visemeCount]string{
	"open-vowel",
	"wide-vowel",
	"round-vowel",
	"labiodental",
	"dental",
	"bilabial-closed",
	"sibilant",
	"rhotic",
	"lateral",
	"alveolar-stop-voiced",
	"alveolar-stop-unvoiced",
	"nasal",
	"velar",
	"palatal-approximant",
}

func (v Viseme) String() string {
	if !v.Valid() {
		return "unknown"
	}
	return visemeNames[v]
}

// Valid reports whether v is one of the declared visemes.
func (v Viseme) Valid() bool {
	return v >= 0 && v < visemeCount
}

// Visemes returns the closed viseme set in declaration order.
func Visemes() []Viseme {
	out := make([]Viseme, visemeCount)
	for i := range out {
		out[i] = Viseme(i)
	}
	return out
}

// ParseViseme accepts a viseme name as printed by String.
func ParseViseme(name string) (Viseme, bool) {
	for i, n := range visemeNames {
		if n == name {
			return Viseme(i), true
		}
	}
	return VisemeOpenVowel, false
}
