package feed

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Array(t *testing.T) {
	s, err := Parse([]byte(`[
		{"start": 0, "end": 5, "phoneme": "HH AH", "word": "huh"},
		{"start": 5, "end": 12, "phoneme": "L OW"}
	]`))
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultUtterance}, s.Names())

	name, table, err := s.Utterance("")
	require.NoError(t, err)
	assert.Equal(t, DefaultUtterance, name)
	require.Len(t, table, 2)
	assert.Equal(t, []string{"HH", "AH"}, table[0].Symbols)
	assert.Equal(t, "huh", table[0].Word)
	assert.Equal(t, 12.0, table[1].End)
}

func TestParse_Object(t *testing.T) {
	s, err := Parse([]byte(`{
		"sad":   [{"start": 0, "end": 4, "phoneme": "OW"}],
		"happy": [{"start": 0, "end": 3, "phoneme": "AY"}, {"start": 3, "end": 9, "phoneme": "M"}]
	}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"happy", "sad"}, s.Names())

	_, table, err := s.Utterance("happy")
	require.NoError(t, err)
	assert.Len(t, table, 2)

	_, _, err = s.Utterance("angry")
	assert.ErrorIs(t, err, ErrUnknownUtterance)

	_, _, err = s.Utterance("")
	assert.ErrorIs(t, err, ErrUnknownUtterance, "ambiguous without a default")
}

func TestParse_SingleNamedUtteranceIsDefault(t *testing.T) {
	s, err := Parse([]byte(`{"happy": [{"start": 0, "end": 3, "phoneme": "AY"}]}`))
	require.NoError(t, err)

	name, _, err := s.Utterance("")
	require.NoError(t, err)
	assert.Equal(t, "happy", name)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", "  "},
		{"scalar", "42"},
		{"bad array", `[{"start": "x"}]`},
		{"bad object", `{"a": 1}`},
		{"empty object", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "word_phonemes.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"start":0,"end":5,"phoneme":"AA"}]`), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, s.Path)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "timing.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"start":0,"end":5,"phoneme":"AA"}]`), 0o644))

	reloaded := make(chan *Script, 4)
	w, err := NewWatcher(path, func(s *Script) { reloaded <- s }, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()

	// Unrelated files in the directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.json"), []byte(`[]`), 0o644))
	require.NoError(t, os.WriteFile(path, []byte(`{"happy":[{"start":0,"end":3,"phoneme":"AY"}]}`), 0o644))

	select {
	case s := <-reloaded:
		assert.Equal(t, []string{"happy"}, s.Names())
	case <-time.After(5 * time.Second):
		t.Fatal("no reload")
	}

	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
}
