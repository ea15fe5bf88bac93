package remap

import (
	"path"
	"path/filepath"

	"github.com/yousuf/profremap/internal/config"
)

// ProjectRelativePath rewrites a source listed in the map at mapFilePath into
// the project namespace: the source is resolved against the map's directory,
// made relative to the build directory and prefixed with the namespace.
// The result always uses forward slashes.
func ProjectRelativePath(layout config.Layout, source, mapFilePath, projectRoot string) string {
	abs := filepath.FromSlash(source)
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(filepath.Dir(mapFilePath), abs)
	}

	rel, err := filepath.Rel(layout.BuildRoot(projectRoot), abs)
	if err != nil {
		// Only happens when one side is relative or on another volume
		rel = abs
	}

	return path.Join(layout.Namespace, filepath.ToSlash(rel))
}

// mapFilePath returns where the source map of a generated file is expected.
func mapFilePath(layout config.Layout, projectRoot, generatedFile string) string {
	return filepath.Join(layout.ScriptsRoot(projectRoot), filepath.FromSlash(generatedFile)+".map")
}
