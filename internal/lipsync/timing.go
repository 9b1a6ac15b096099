package lipsync

import "strings"

// TimingWindow associates a span of the timing table with phonetic symbols.
// Start and End are in timing units, see TimestampScale.
type TimingWindow struct {
	Start   float64  `json:"start"`
	End     float64  `json:"end"`
	Symbols []string `json:"symbols"`
	Word    string   `json:"word,omitempty"`
}

// NewTimingWindow splits a space-delimited phoneme string into symbols.
func NewTimingWindow(start, end float64, phonemes string) TimingWindow {
	return TimingWindow{Start: start, End: end, Symbols: strings.Fields(phonemes)}
}

// Key identifies the window by its joined symbols.
func (w TimingWindow) Key() string {
	return strings.Join(w.Symbols, " ")
}

// Span returns the window bounds in milliseconds for the given scale.
func (w TimingWindow) Span(scale float64) (startMs, endMs float64) {
	return w.Start * scale, w.End * scale
}

// Contains reports whether posMs falls inside the window, bounds included.
func (w TimingWindow) Contains(posMs, scale float64) bool {
	start, end := w.Span(scale)
	return posMs >= start && posMs <= end
}

// Degenerate reports a window with no length or no symbols.
func (w TimingWindow) Degenerate() bool {
	return w.End <= w.Start || len(w.Symbols) == 0
}

// TimingTable is the ordered window sequence of one utterance.
type TimingTable []TimingWindow

// Active returns the first window in table order containing posMs.
func (t TimingTable) Active(posMs, scale float64) (int, bool) {
	for i, w := range t {
		if w.Contains(posMs, scale) {
			return i, true
		}
	}
	return -1, false
}

// Duration is the end of the last-ending window in milliseconds.
func (t TimingTable) Duration(scale float64) float64 {
	var end float64
	for _, w := range t {
		if _, e := w.Span(scale); e > end {
			end = e
		}
	}
	return end
}
