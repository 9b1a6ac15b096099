package avatar3d

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
)

// ReadOBJPositions reads the vertex positions ("v x y z") of a Wavefront OBJ
// stream. Faces, normals and materials are ignored; the expression frames share
// topology with the base frame.
func ReadOBJPositions(r io.Reader) ([]mgl32.Vec3, error) {
	var positions []mgl32.Vec3

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || fields[0] != "v" {
			continue
		}
		if len(fields) < 4 {
			return nil, fmt.Errorf("line %d: vertex needs 3 coordinates", line)
		}
		var v mgl32.Vec3
		for i := 0; i < 3; i++ {
			f, err := strconv.ParseFloat(fields[i+1], 32)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			v[i] = float32(f)
		}
		positions = append(positions, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan obj: %w", err)
	}
	return positions, nil
}

// LoadFrames reads every OBJ matched by pattern, ordered by path, as one
// expression frame each.
func LoadFrames(pattern string) ([]Frame, error) {
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("glob frames: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no frames match %q", pattern)
	}
	sort.SliceStable(paths, func(i, j int) bool { return lessFramePath(paths[i], paths[j]) })

	frames := make([]Frame, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return nil, fmt.Errorf("open frame: %w", err)
		}
		positions, err := ReadOBJPositions(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read frame %s: %w", p, err)
		}
		frames = append(frames, Frame{Name: frameName(p), Positions: positions})
	}
	return frames, nil
}

// lessFramePath orders numbered frame directories numerically (2 before 10).
func lessFramePath(a, b string) bool {
	na, okA := frameNumber(a)
	nb, okB := frameNumber(b)
	if okA && okB && na != nb {
		return na < nb
	}
	return a < b
}

// frameNumber finds the closest numeric directory above path, as in
// frames/3/capture/face.obj.
func frameNumber(path string) (int, bool) {
	dir := filepath.Dir(path)
	for dir != "." && dir != string(filepath.Separator) {
		if n, err := strconv.Atoi(filepath.Base(dir)); err == nil {
			return n, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return 0, false
}

func frameName(path string) string {
	if n, ok := frameNumber(path); ok {
		return "frame_" + strconv.Itoa(n)
	}
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}
