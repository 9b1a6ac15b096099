package avatar3d

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
)

var (
	ErrNotEnoughFrames = errors.New("at least two frames are required to build morph targets")
	ErrVertexMismatch  = errors.New("frame vertex count differs from base frame")
)

type MorphTarget struct {
	Name           string
	PositionDeltas []mgl32.Vec3
}

// Mesh is a headless morph mesh: base positions, relative morph targets and
// the influence array driven by the lip-sync animator.
type Mesh struct {
	Name         string
	BaseVertices []mgl32.Vec3
	MorphTargets []MorphTarget
	Influences   MorphWeights
	Deformed     []mgl32.Vec3
}

// Frame is one captured facial expression.
type Frame struct {
	Name      string
	Positions []mgl32.Vec3
}

// FuseFrames turns an expression sequence into one mesh. Frame 0 is the base
// pose, every following frame becomes a morph target.
func FuseFrames(name string, frames []Frame) (*Mesh, error) {
	if len(frames) < 2 {
		return nil, ErrNotEnoughFrames
	}

	base := frames[0].Positions
	if len(base) == 0 {
		return nil, fmt.Errorf("base frame %q has no vertices", frames[0].Name)
	}

	mesh := &Mesh{
		Name:         name,
		BaseVertices: make([]mgl32.Vec3, len(base)),
	}
	copy(mesh.BaseVertices, base)

	for i, f := range frames[1:] {
		if len(f.Positions) != len(base) {
			return nil, fmt.Errorf("frame %d (%s): %w: got %d, want %d",
				i+1, f.Name, ErrVertexMismatch, len(f.Positions), len(base))
		}
		mt := MorphTarget{Name: f.Name, PositionDeltas: make([]mgl32.Vec3, len(base))}
		if mt.Name == "" {
			mt.Name = fmt.Sprintf("target_%d", i)
		}
		for vi, p := range f.Positions {
			mt.PositionDeltas[vi] = p.Sub(base[vi])
		}
		mesh.MorphTargets = append(mesh.MorphTargets, mt)
	}

	mesh.Influences = NewMorphWeights(len(mesh.MorphTargets))
	mesh.Deformed = make([]mgl32.Vec3, len(base))
	copy(mesh.Deformed, base)
	return mesh, nil
}

// NewPlaceholderMesh has no geometry, only an influence array. Used when no
// model asset is configured.
func NewPlaceholderMesh(targets int) *Mesh {
	mesh := &Mesh{Name: "placeholder", Influences: NewMorphWeights(targets)}
	for i := 0; i < targets; i++ {
		mesh.MorphTargets = append(mesh.MorphTargets, MorphTarget{Name: fmt.Sprintf("target_%d", i)})
	}
	return mesh
}

func LoadMesh(path string) (*Mesh, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gltf: %w", err)
	}

	if len(doc.Meshes) == 0 {
		return nil, fmt.Errorf("no meshes in file")
	}

	gltfMesh := doc.Meshes[0]
	if len(gltfMesh.Primitives) == 0 {
		return nil, fmt.Errorf("no primitives in mesh")
	}
	prim := gltfMesh.Primitives[0]

	posIdx, ok := prim.Attributes[gltf.POSITION]
	if !ok {
		return nil, fmt.Errorf("primitive has no POSITION attribute")
	}
	positions, err := readAccessorVec3(doc, int(posIdx))
	if err != nil {
		return nil, fmt.Errorf("read positions: %w", err)
	}

	mesh := &Mesh{
		Name:         gltfMesh.Name,
		BaseVertices: positions,
	}

	for i, target := range prim.Targets {
		mt := MorphTarget{Name: fmt.Sprintf("target_%d", i)}
		if idx, ok := target[gltf.POSITION]; ok {
			mt.PositionDeltas, err = readAccessorVec3(doc, int(idx))
			if err != nil {
				return nil, fmt.Errorf("read morph target %d: %w", i, err)
			}
		}
		mesh.MorphTargets = append(mesh.MorphTargets, mt)
	}

	if extras, ok := gltfMesh.Extras.(map[string]interface{}); ok {
		if targetNames, ok := extras["targetNames"].([]interface{}); ok {
			for i, name := range targetNames {
				if i < len(mesh.MorphTargets) {
					if strName, ok := name.(string); ok {
						mesh.MorphTargets[i].Name = strName
					}
				}
			}
		}
	}

	mesh.Influences = NewMorphWeights(len(mesh.MorphTargets))
	mesh.Deformed = make([]mgl32.Vec3, len(positions))
	copy(mesh.Deformed, positions)
	return mesh, nil
}

// TargetIndex returns the morph target index for name, or -1.
func (m *Mesh) TargetIndex(name string) int {
	for i, t := range m.MorphTargets {
		if t.Name == name {
			return i
		}
	}
	return -1
}

// Deform recomputes Deformed from the base pose and the given weights.
func (m *Mesh) Deform(weights MorphWeights) {
	if len(m.Deformed) != len(m.BaseVertices) {
		m.Deformed = make([]mgl32.Vec3, len(m.BaseVertices))
	}
	copy(m.Deformed, m.BaseVertices)

	for ti, target := range m.MorphTargets {
		if ti >= len(weights) {
			break
		}
		weight := weights[ti]
		if weight < 0.001 {
			continue
		}
		for vi, delta := range target.PositionDeltas {
			if vi < len(m.Deformed) {
				m.Deformed[vi] = m.Deformed[vi].Add(delta.Mul(weight))
			}
		}
	}
}

func readAccessorVec3(doc *gltf.Document, accessorIdx int) ([]mgl32.Vec3, error) {
	if accessorIdx < 0 || accessorIdx >= len(doc.Accessors) {
		return nil, fmt.Errorf("accessor %d out of range", accessorIdx)
	}
	accessor := doc.Accessors[accessorIdx]
	if accessor.BufferView == nil {
		// sparse-only accessor, treat as zeroed
		return make([]mgl32.Vec3, int(accessor.Count)), nil
	}
	bufferView := doc.BufferViews[*accessor.BufferView]
	buffer := doc.Buffers[bufferView.Buffer]

	if len(buffer.Data) == 0 {
		return nil, fmt.Errorf("buffer has no data")
	}
	data := buffer.Data

	offset := int(bufferView.ByteOffset) + int(accessor.ByteOffset)
	count := int(accessor.Count)
	stride := int(bufferView.ByteStride)
	if stride == 0 {
		stride = 12
	}
	if count > 0 && offset+(count-1)*stride+12 > len(data) {
		return nil, fmt.Errorf("accessor %d exceeds buffer length", accessorIdx)
	}

	result := make([]mgl32.Vec3, count)
	for i := 0; i < count; i++ {
		idx := offset + i*stride
		result[i] = mgl32.Vec3{
			math.Float32frombits(binary.LittleEndian.Uint32(data[idx:])),
			math.Float32frombits(binary.LittleEndian.Uint32(data[idx+4:])),
			math.Float32frombits(binary.LittleEndian.Uint32(data[idx+8:])),
		}
	}
	return result, nil
}
