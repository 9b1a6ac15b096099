package avatar3d

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMorphWeights(t *testing.T) {
	w := NewMorphWeights(3)
	require.Equal(t, 3, w.Len())
	assert.True(t, w.IsNeutral())

	w.Set(0, 0.5)
	w.Set(1, 1.5)
	w.Set(2, -0.5)
	w.Set(7, 1)

	assert.Equal(t, float32(0.5), w.Get(0))
	assert.Equal(t, float32(1), w.Get(1), "clamped to 1")
	assert.Equal(t, float32(0), w.Get(2), "clamped to 0")
	assert.Equal(t, float32(0), w.Get(7))
	assert.Equal(t, float32(1), w.Max())

	c := w.Clone()
	w.Reset()
	assert.True(t, w.IsNeutral())
	assert.Equal(t, float32(0.5), c.Get(0), "clone is independent")

	assert.Nil(t, NewMorphWeights(0))
	assert.Nil(t, MorphWeights(nil).Clone())
}

func testFrames() []Frame {
	return []Frame{
		{Name: "base", Positions: []mgl32.Vec3{{0, 0, 0}, {1, 0, 0}}},
		{Name: "open", Positions: []mgl32.Vec3{{0, -1, 0}, {1, 0, 0}}},
		{Name: "", Positions: []mgl32.Vec3{{0, 0, 0}, {2, 0, 0}}},
	}
}

func TestFuseFrames(t *testing.T) {
	mesh, err := FuseFrames("face", testFrames())
	require.NoError(t, err)

	assert.Equal(t, "face", mesh.Name)
	require.Len(t, mesh.MorphTargets, 2)
	assert.Equal(t, "open", mesh.MorphTargets[0].Name)
	assert.Equal(t, "target_1", mesh.MorphTargets[1].Name)
	assert.Equal(t, mgl32.Vec3{0, -1, 0}, mesh.MorphTargets[0].PositionDeltas[0])
	assert.Equal(t, mgl32.Vec3{1, 0, 0}, mesh.MorphTargets[1].PositionDeltas[1])
	assert.Equal(t, 2, mesh.Influences.Len())
	assert.True(t, mesh.Influences.IsNeutral())
	assert.Equal(t, mesh.BaseVertices, mesh.Deformed)
}

func TestFuseFrames_Errors(t *testing.T) {
	_, err := FuseFrames("face", testFrames()[:1])
	assert.ErrorIs(t, err, ErrNotEnoughFrames)

	frames := testFrames()
	frames[2].Positions = frames[2].Positions[:1]
	_, err = FuseFrames("face", frames)
	assert.ErrorIs(t, err, ErrVertexMismatch)

	_, err = FuseFrames("face", []Frame{{Name: "empty"}, {Name: "x"}})
	assert.Error(t, err)
}

func TestMesh_Deform(t *testing.T) {
	mesh, err := FuseFrames("face", testFrames())
	require.NoError(t, err)

	mesh.Influences.Set(0, 0.5)
	mesh.Influences.Set(1, 1)
	mesh.Deform(mesh.Influences)

	assert.InDelta(t, -0.5, mesh.Deformed[0].Y(), 1e-6)
	assert.InDelta(t, 2.0, mesh.Deformed[1].X(), 1e-6)

	mesh.Influences.Reset()
	mesh.Deform(mesh.Influences)
	assert.Equal(t, mesh.BaseVertices, mesh.Deformed)
}

func TestMesh_EmotionChannels(t *testing.T) {
	mesh := NewPlaceholderMesh(3)
	mesh.MorphTargets[0].Name = "Frown"
	mesh.MorphTargets[2].Name = "MouthTight"

	assert.Equal(t, []int{0, 2}, mesh.EmotionChannels(EmotionAngry))
	assert.Equal(t, []int{0}, mesh.EmotionChannels(EmotionSad))
	assert.Empty(t, mesh.EmotionChannels(EmotionHappy))
	assert.Empty(t, mesh.EmotionChannels(EmotionNeutral))
	assert.Equal(t, -1, mesh.TargetIndex("Smile"))
}

func TestParseEmotion(t *testing.T) {
	assert.Equal(t, EmotionHappy, ParseEmotion(" Happy "))
	assert.Equal(t, EmotionAngry, ParseEmotion("ANGRY"))
	assert.Equal(t, EmotionNeutral, ParseEmotion("bored"))
	assert.Equal(t, []string{"Smile", "EyesWide"}, PresetFor(EmotionHappy).Targets)
	assert.Empty(t, PresetFor(Emotion("other")).Targets)
}

func TestReadOBJPositions(t *testing.T) {
	src := `# capture
o face
v 0.0 1.0 2.0
vn 0 0 1
v -1 0.5 3e-1
f 1 2 3
`
	positions, err := ReadOBJPositions(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, positions, 2)
	assert.Equal(t, mgl32.Vec3{0, 1, 2}, positions[0])
	assert.InDelta(t, 0.3, positions[1].Z(), 1e-6)

	_, err = ReadOBJPositions(strings.NewReader("v 1 2\n"))
	assert.Error(t, err)

	_, err = ReadOBJPositions(strings.NewReader("v 1 two 3\n"))
	assert.Error(t, err)
}

func writeOBJ(t *testing.T, path string, y float32) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	content := fmt.Sprintf("v 0 0 0\nv 1 %g 0\n", y)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadFrames_NumericOrder(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []int{0, 1, 2, 10} {
		writeOBJ(t, filepath.Join(dir, fmt.Sprint(n), "capture", "frame.obj"), float32(n))
	}

	frames, err := LoadFrames(filepath.Join(dir, "*", "capture", "frame.obj"))
	require.NoError(t, err)
	require.Len(t, frames, 4)

	names := make([]string, len(frames))
	for i, f := range frames {
		names[i] = f.Name
	}
	assert.Equal(t, []string{"frame_0", "frame_1", "frame_2", "frame_10"}, names)
	assert.InDelta(t, 10.0, frames[3].Positions[1].Y(), 1e-6)

	mesh, err := FuseFrames("capture", frames)
	require.NoError(t, err)
	assert.Len(t, mesh.MorphTargets, 3)
}

func TestLoadFrames_NoMatch(t *testing.T) {
	_, err := LoadFrames(filepath.Join(t.TempDir(), "*.obj"))
	assert.Error(t, err)
}

func TestFrameName(t *testing.T) {
	assert.Equal(t, "frame_3", frameName(filepath.Join("frames", "3", "capture", "face.obj")))
	assert.Equal(t, "smile", frameName(filepath.Join("frames", "smile.obj")))
}

func TestLoadMesh_MissingFile(t *testing.T) {
	_, err := LoadMesh(filepath.Join(t.TempDir(), "missing.glb"))
	assert.Error(t, err)
}
