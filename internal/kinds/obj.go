package kinds

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/zjrosen/assetcache/internal/asset"
	"github.com/zjrosen/assetcache/internal/binding"
	"github.com/zjrosen/assetcache/internal/graph"
)

// ObjExtension is the extension of Wavefront OBJ sources.
const ObjExtension = "obj"

// cubeSource is written for new obj items.
const cubeSource = `g cube

v  0.0  0.0  0.0
v  0.0  0.0  1.0
v  0.0  1.0  0.0
v  0.0  1.0  1.0
v  1.0  0.0  0.0
v  1.0  0.0  1.0
v  1.0  1.0  0.0
v  1.0  1.0  1.0

vn  0.0  0.0  1.0
vn  0.0  0.0 -1.0
vn  0.0  1.0  0.0
vn  0.0 -1.0  0.0
vn  1.0  0.0  0.0
vn -1.0  0.0  0.0

f  1//2  7//2  5//2
f  1//2  3//2  7//2
f  1//6  4//6  3//6
f  1//6  2//6  4//6
f  3//3  8//3  7//3
f  3//3  4//3  8//3
f  5//5  7//5  8//5
f  5//5  8//5  6//5
f  1//4  5//4  6//4
f  1//4  6//4  2//4
f  2//1  6//1  8//1
f  2//1  8//1  4//1
`

// Obj returns the binding for Wavefront OBJ meshes. Processing yields a Mesh
// holding the geometry streams, the faces with indices made absolute, and
// derived counts and bounds.
func Obj() binding.Binding {
	return binding.Binding{
		Extension:     ObjExtension,
		Description:   "Wavefront OBJ mesh",
		DefaultSource: []byte(cubeSource),
		Process:       processObj,
		Unprocess:     unprocessObj,
	}
}

type objMesh struct {
	name      string
	positions []float64
	normals   []float64
	texcoords []float64
	faces     [][]string
	materials []string
	libraries []string
}

func processObj(_ context.Context, _ *binding.Env, src []byte) (*graph.Node, error) {
	m, err := parseObj(src)
	if err != nil {
		return nil, err
	}
	return m.node(), nil
}

func objError(line int, format string, args ...any) error {
	return &asset.TransformError{
		Kind:     ObjExtension,
		Op:       "process",
		Location: asset.Location{Line: line},
		Err:      fmt.Errorf(format, args...),
	}
}

func parseObj(src []byte) (*objMesh, error) {
	m := &objMesh{}
	scanner := bufio.NewScanner(bytes.NewReader(src))
	// A single line may be as long as the whole source.
	scanner.Buffer(make([]byte, 0, 64*1024), len(src)+1)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		if !utf8.ValidString(text) {
			return nil, objError(line, "line is not valid UTF-8")
		}
		tokens := strings.Fields(text)
		directive, args := tokens[0], tokens[1:]
		switch directive {
		case "v":
			if err := appendFloats(&m.positions, args, 3, line, directive); err != nil {
				return nil, err
			}
		case "vn":
			if err := appendFloats(&m.normals, args, 3, line, directive); err != nil {
				return nil, err
			}
		case "vt":
			if err := appendFloats(&m.texcoords, args, 2, line, directive); err != nil {
				return nil, err
			}
		case "f":
			face, err := m.parseFace(args, line)
			if err != nil {
				return nil, err
			}
			m.faces = append(m.faces, face)
		case "g", "o":
			if len(args) == 0 {
				return nil, objError(line, "%s needs a name", directive)
			}
			if m.name == "" {
				m.name = strings.Join(args, " ")
			}
		case "usemtl":
			if len(args) != 1 {
				return nil, objError(line, "usemtl needs one material name")
			}
			m.materials = append(m.materials, args[0])
		case "mtllib":
			if len(args) == 0 {
				return nil, objError(line, "mtllib needs a file name")
			}
			m.libraries = append(m.libraries, args...)
		case "s":
			// Smoothing groups do not affect the artifact.
		default:
			return nil, objError(line, "unknown directive %q", directive)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &asset.TransformError{Kind: ObjExtension, Op: "process", Err: err}
	}
	if len(m.faces) == 0 {
		return nil, &asset.TransformError{Kind: ObjExtension, Op: "process", Err: fmt.Errorf("mesh has no faces")}
	}
	return m, nil
}

func appendFloats(dst *[]float64, args []string, n, line int, directive string) error {
	if len(args) != n {
		return objError(line, "%s needs %d components, got %d", directive, n, len(args))
	}
	for i, arg := range args {
		f, err := strconv.ParseFloat(arg, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return objError(line, "%s component %d: invalid number %q", directive, i+1, arg)
		}
		*dst = append(*dst, f)
	}
	return nil
}

// parseFace validates the corners of a face and rewrites relative indices as
// absolute ones, so a face means the same thing wherever it is written.
func (m *objMesh) parseFace(args []string, line int) ([]string, error) {
	if len(args) < 3 {
		return nil, objError(line, "face needs at least 3 corners, got %d", len(args))
	}
	counts := [3]int{len(m.positions) / 3, len(m.texcoords) / 2, len(m.normals) / 3}
	names := [3]string{"position", "texcoord", "normal"}

	face := make([]string, 0, len(args))
	for _, corner := range args {
		parts := strings.Split(corner, "/")
		if len(parts) > 3 {
			return nil, objError(line, "malformed corner %q", corner)
		}
		resolved := make([]string, len(parts))
		for i, part := range parts {
			if part == "" {
				if i == 0 {
					return nil, objError(line, "corner %q has no position index", corner)
				}
				continue
			}
			idx, err := strconv.Atoi(part)
			if err != nil || idx == 0 {
				return nil, objError(line, "corner %q: invalid %s index %q", corner, names[i], part)
			}
			if idx < 0 {
				idx = counts[i] + idx + 1
			}
			if idx < 1 || idx > counts[i] {
				return nil, objError(line, "corner %q: %s index out of range (have %d)", corner, names[i], counts[i])
			}
			resolved[i] = strconv.Itoa(idx)
		}
		face = append(face, strings.Join(resolved, "/"))
	}
	return face, nil
}

func (m *objMesh) node() *graph.Node {
	faces := make([]graph.Value, len(m.faces))
	unique := make(map[string]struct{})
	triangles := 0
	for i, face := range m.faces {
		corners := make([]graph.Value, len(face))
		for j, c := range face {
			corners[j] = graph.String(c)
			unique[c] = struct{}{}
		}
		faces[i] = graph.List(corners...)
		triangles += len(face) - 2
	}

	return graph.NewNode(TypeMesh).
		Set("name", graph.String(m.name)).
		Set("positions", graph.Floats(m.positions...)).
		Set("normals", graph.Floats(m.normals...)).
		Set("texcoords", graph.Floats(m.texcoords...)).
		Set("faces", graph.List(faces...)).
		Set("materials", stringValues(m.materials)).
		Set("materialLibraries", stringValues(m.libraries)).
		Set("vertexCount", graph.Int(int64(len(unique)))).
		Set("triangleCount", graph.Int(int64(triangles))).
		Set("bounds", graph.NodeValue(bounds(m.positions)))
}

func stringValues(ss []string) graph.Value {
	items := make([]graph.Value, len(ss))
	for i, s := range ss {
		items[i] = graph.String(s)
	}
	return graph.List(items...)
}

func bounds(positions []float64) *graph.Node {
	lo := []float64{math.Inf(1), math.Inf(1), math.Inf(1)}
	hi := []float64{math.Inf(-1), math.Inf(-1), math.Inf(-1)}
	for i := 0; i+2 < len(positions); i += 3 {
		for axis := 0; axis < 3; axis++ {
			lo[axis] = math.Min(lo[axis], positions[i+axis])
			hi[axis] = math.Max(hi[axis], positions[i+axis])
		}
	}
	if len(positions) < 3 {
		lo, hi = []float64{0, 0, 0}, []float64{0, 0, 0}
	}
	return graph.NewNode(TypeBounds).
		Set("min", graph.Floats(lo...)).
		Set("max", graph.Floats(hi...))
}

// unprocessObj writes canonical OBJ text for a Mesh. Derived fields are not
// written; processing the output recomputes them.
func unprocessObj(_ context.Context, _ *binding.Env, node *graph.Node) ([]byte, error) {
	fail := func(err error) ([]byte, error) {
		return nil, &asset.TransformError{Kind: ObjExtension, Op: "unprocess", Err: err}
	}
	if node == nil || node.Type() != TypeMesh {
		got := "<nil>"
		if node != nil {
			got = node.Type()
		}
		return fail(fmt.Errorf("want %s, got %s", TypeMesh, got))
	}

	var buf bytes.Buffer
	buf.WriteString("# assetcache obj\n")
	if name := stringField(node, "name"); name != "" {
		fmt.Fprintf(&buf, "g %s\n", name)
	}
	for _, lib := range stringList(node, "materialLibraries") {
		fmt.Fprintf(&buf, "mtllib %s\n", lib)
	}
	streams := []struct {
		field, directive string
		width            int
	}{
		{"positions", "v", 3},
		{"normals", "vn", 3},
		{"texcoords", "vt", 2},
	}
	for _, s := range streams {
		fs, err := floatList(node, s.field)
		if err != nil {
			return fail(err)
		}
		if len(fs)%s.width != 0 {
			return fail(fmt.Errorf("%s has %d components, not a multiple of %d", s.field, len(fs), s.width))
		}
		for i := 0; i < len(fs); i += s.width {
			buf.WriteString(s.directive)
			for _, f := range fs[i : i+s.width] {
				buf.WriteByte(' ')
				buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
			}
			buf.WriteByte('\n')
		}
	}
	for _, mtl := range stringList(node, "materials") {
		fmt.Fprintf(&buf, "usemtl %s\n", mtl)
	}

	facesValue, ok := node.Get("faces")
	if !ok {
		return fail(fmt.Errorf("mesh has no faces field"))
	}
	faces, ok := facesValue.AsList()
	if !ok {
		return fail(fmt.Errorf("faces is %s, want list", facesValue.Kind()))
	}
	for i, face := range faces {
		corners, ok := face.AsList()
		if !ok {
			return fail(fmt.Errorf("face %d is %s, want list", i, face.Kind()))
		}
		buf.WriteString("f")
		for _, c := range corners {
			s, ok := c.AsString()
			if !ok {
				return fail(fmt.Errorf("face %d has a non-string corner", i))
			}
			buf.WriteByte(' ')
			buf.WriteString(s)
		}
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func stringField(n *graph.Node, name string) string {
	v, ok := n.Get(name)
	if !ok {
		return ""
	}
	s, _ := v.AsString()
	return s
}

func stringList(n *graph.Node, name string) []string {
	v, ok := n.Get(name)
	if !ok {
		return nil
	}
	items, _ := v.AsList()
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.AsString(); ok {
			out = append(out, s)
		}
	}
	return out
}

func floatList(n *graph.Node, name string) ([]float64, error) {
	v, ok := n.Get(name)
	if !ok {
		return nil, nil
	}
	items, ok := v.AsList()
	if !ok {
		return nil, fmt.Errorf("%s is %s, want list", name, v.Kind())
	}
	out := make([]float64, len(items))
	for i, item := range items {
		f, ok := item.AsFloat()
		if !ok {
			return nil, fmt.Errorf("%s[%d] is %s, want float", name, i, item.Kind())
		}
		out[i] = f
	}
	return out, nil
}
