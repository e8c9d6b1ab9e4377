package testutil

// WithStandardTree adds three meshes at different depths and two files no
// kind handles.
//
// Structure:
//
//	root/
//	  cube.obj
//	  notes.txt
//	  props/
//	    crate.obj
//	    readme.md
//	    small/
//	      pebble.obj
func (b *Tree) WithStandardTree() *Tree {
	return b.
		WithMesh("cube.obj", Quad()).
		WithMesh("props/crate.obj", Material("wood")).
		WithMesh("props/small/pebble.obj").
		WithFile("notes.txt", "not an asset").
		WithFile("props/readme.md", "# props")
}

// WithBrokenMeshes adds two meshes that fail to process: one with an
// unknown directive on line 2 and one with no faces.
func (b *Tree) WithBrokenMeshes() *Tree {
	return b.
		WithFile("broken/bogus.obj", "v 0 0 0\nbogus\n").
		WithFile("broken/empty.obj", "v 0 0 0\n")
}
