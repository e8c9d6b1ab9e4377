package testutil

import (
	"fmt"
	"strings"
)

// meshData describes an OBJ file to be written.
type meshData struct {
	name      string
	positions [][3]float64
	faces     [][]int
	material  string
}

// defaultMesh returns a single triangle named after the file.
func defaultMesh(name string) meshData {
	return meshData{
		name:      name,
		positions: [][3]float64{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}},
		faces:     [][]int{{1, 2, 3}},
	}
}

// MeshOption configures a mesh during tree setup.
type MeshOption func(*meshData)

// MeshName sets the group name.
func MeshName(name string) MeshOption {
	return func(m *meshData) { m.name = name }
}

// Quad replaces the geometry with a unit quad.
func Quad() MeshOption {
	return func(m *meshData) {
		m.positions = [][3]float64{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0}}
		m.faces = [][]int{{1, 2, 3, 4}}
	}
}

// Material assigns a material to the faces.
func Material(name string) MeshOption {
	return func(m *meshData) { m.material = name }
}

// source renders m as OBJ text.
func (m meshData) source() string {
	var b strings.Builder
	fmt.Fprintf(&b, "g %s\n", m.name)
	for _, p := range m.positions {
		fmt.Fprintf(&b, "v %g %g %g\n", p[0], p[1], p[2])
	}
	if m.material != "" {
		fmt.Fprintf(&b, "usemtl %s\n", m.material)
	}
	for _, f := range m.faces {
		b.WriteString("f")
		for _, i := range f {
			fmt.Fprintf(&b, " %d", i)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
