// Package feed loads phoneme timing scripts and watches them for edits.
//
// A script is JSON. Either a bare array of entries, which becomes the single
// utterance "default", or an object mapping utterance names to arrays:
//
//	{"happy": [{"start": 0, "end": 12, "phoneme": "AY M", "word": "I'm"}]}
package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/normanking/talkinghead/internal/lipsync"
)

// DefaultUtterance names the utterance of an array-form script.
const DefaultUtterance = "default"

var (
	ErrEmptyScript      = errors.New("timing script has no utterances")
	ErrUnknownUtterance = errors.New("utterance not found in timing script")
)

// Entry is one record of the timing JSON.
type Entry struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Phoneme string  `json:"phoneme"`
	Word    string  `json:"word,omitempty"`
}

func (e Entry) Window() lipsync.TimingWindow {
	w := lipsync.NewTimingWindow(e.Start, e.End, e.Phoneme)
	w.Word = e.Word
	return w
}

// Script is a set of named utterances.
type Script struct {
	Path       string
	utterances map[string]lipsync.TimingTable
}

func Parse(data []byte) (*Script, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrEmptyScript
	}

	s := &Script{utterances: make(map[string]lipsync.TimingTable)}
	switch data[0] {
	case '[':
		var entries []Entry
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("decode timing array: %w", err)
		}
		s.utterances[DefaultUtterance] = toTable(entries)
	case '{':
		var named map[string][]Entry
		if err := json.Unmarshal(data, &named); err != nil {
			return nil, fmt.Errorf("decode timing object: %w", err)
		}
		for name, entries := range named {
			s.utterances[name] = toTable(entries)
		}
	default:
		return nil, fmt.Errorf("timing script must be a JSON array or object")
	}

	if len(s.utterances) == 0 {
		return nil, ErrEmptyScript
	}
	return s, nil
}

func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read timing script: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.Path = path
	return s, nil
}

// Names returns the utterance names in sorted order.
func (s *Script) Names() []string {
	names := make([]string, 0, len(s.utterances))
	for name := range s.utterances {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Utterance returns the named table. An empty name picks "default", or the
// only utterance when there is just one.
func (s *Script) Utterance(name string) (string, lipsync.TimingTable, error) {
	if name == "" {
		if t, ok := s.utterances[DefaultUtterance]; ok {
			return DefaultUtterance, t, nil
		}
		if len(s.utterances) == 1 {
			name = s.Names()[0]
		}
	}
	t, ok := s.utterances[name]
	if !ok {
		return "", nil, fmt.Errorf("%w: %q", ErrUnknownUtterance, name)
	}
	return name, t, nil
}

func toTable(entries []Entry) lipsync.TimingTable {
	table := make(lipsync.TimingTable, 0, len(entries))
	for _, e := range entries {
		table = append(table, e.Window())
	}
	return table
}
