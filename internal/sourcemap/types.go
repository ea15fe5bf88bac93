package sourcemap

// Position is an original source position resolved from a source map
type Position struct {
	// Source file as listed in the map's sources (after sourceRoot is applied)
	Source string
	// Line number (1-indexed), 0 if the map did not provide one
	Line int
	// Column number (0-indexed)
	Column int
	// Original symbol name, empty if the mapping has none
	Name string
}

// Consumer resolves generated positions against a single parsed source map.
type Consumer interface {
	// OriginalPosition takes a 1-indexed line and 0-indexed column in the
	// generated file. It reports false when the position has no original source.
	OriginalPosition(line, column int) (Position, bool)
	// Close releases the parsed map.
	Close() error
}

// Loader reads and parses the source map stored at path.
type Loader interface {
	Load(path string) (Consumer, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(path string) (Consumer, error)

func (f LoaderFunc) Load(path string) (Consumer, error) {
	return f(path)
}
