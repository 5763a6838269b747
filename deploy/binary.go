package deploy

// BinaryTarget is a resolved binary version and its path inside the binary
// directory tree: <binaries_dir>/<binary>/<version>/<binary>.
type BinaryTarget struct {
	Binary  string
	Version string
	Path    string
}

// BinaryRegistry resolves a binary name plus tag-or-explicit-version into a
// concrete target. The registry itself is maintained outside the engine.
type BinaryRegistry interface {
	Resolve(binary, tagOrVersion string) (BinaryTarget, error)
}
