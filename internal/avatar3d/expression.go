package avatar3d

import (
	"strings"
	"time"
)

type Emotion string

const (
	EmotionNeutral Emotion = "neutral"
	EmotionHappy   Emotion = "happy"
	EmotionSad     Emotion = "sad"
	EmotionAngry   Emotion = "angry"
)

// EmotionHold is how long an emotion pulse keeps its targets at full weight.
const EmotionHold = time.Second

type ExpressionPreset struct {
	Emotion Emotion
	Targets []string
}

var expressionPresets = map[Emotion]ExpressionPreset{
	EmotionNeutral: {Emotion: EmotionNeutral},
	EmotionHappy:   {Emotion: EmotionHappy, Targets: []string{"Smile", "EyesWide"}},
	EmotionSad:     {Emotion: EmotionSad, Targets: []string{"Frown", "EyesClosed"}},
	EmotionAngry:   {Emotion: EmotionAngry, Targets: []string{"Frown", "MouthTight"}},
}

func ParseEmotion(s string) Emotion {
	e := Emotion(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := expressionPresets[e]; ok {
		return e
	}
	return EmotionNeutral
}

func PresetFor(e Emotion) ExpressionPreset {
	if p, ok := expressionPresets[e]; ok {
		return p
	}
	return expressionPresets[EmotionNeutral]
}

// EmotionChannels resolves an emotion's named targets against the mesh.
// Targets the mesh does not carry are skipped.
func (m *Mesh) EmotionChannels(e Emotion) []int {
	var channels []int
	for _, name := range PresetFor(e).Targets {
		if idx := m.TargetIndex(name); idx >= 0 {
			channels = append(channels, idx)
		}
	}
	return channels
}
