package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Default layout of a regolith project.
const (
	DefaultBuildDir         = ".regolith/tmp"
	DefaultScriptsDir       = "BP/scripts"
	DefaultNamespace        = "packs"
	DefaultProfileExtension = ".cpuprofile"
)

// Layout describes where compiled scripts live inside a project and how
// resolved sources are renamed.
type Layout struct {
	// Build output directory, relative to the project root
	BuildDir string `yaml:"buildDir"`
	// Directory holding compiled scripts and their .map files, relative to BuildDir
	ScriptsDir string `yaml:"scriptsDir"`
	// Leading path segment of every rewritten source path
	Namespace string `yaml:"namespace"`
	// Extension of profile files, used to name the remapped output
	ProfileExtension string `yaml:"profileExtension"`
}

// Default returns the layout used when no config file is given.
func Default() Layout {
	return Layout{
		BuildDir:         DefaultBuildDir,
		ScriptsDir:       DefaultScriptsDir,
		Namespace:        DefaultNamespace,
		ProfileExtension: DefaultProfileExtension,
	}
}

// BuildRoot returns the absolute build directory for projectRoot.
func (l Layout) BuildRoot(projectRoot string) string {
	return filepath.Join(projectRoot, filepath.FromSlash(l.BuildDir))
}

// ScriptsRoot returns the directory compiled scripts are looked up in.
func (l Layout) ScriptsRoot(projectRoot string) string {
	return filepath.Join(l.BuildRoot(projectRoot), filepath.FromSlash(l.ScriptsDir))
}

// Load reads a YAML layout file. Keys missing from the file keep their defaults.
func Load(configPath string) (Layout, error) {
	layout := Default()

	data, err := os.ReadFile(configPath)
	if err != nil {
		return Layout{}, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &layout); err != nil {
		return Layout{}, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validate(layout); err != nil {
		return Layout{}, fmt.Errorf("invalid config: %w", err)
	}

	return layout, nil
}

// validate checks if the layout is usable
func validate(l Layout) error {
	dirs := []struct {
		name, value string
	}{
		{"buildDir", l.BuildDir},
		{"scriptsDir", l.ScriptsDir},
	}
	for _, d := range dirs {
		if d.value == "" {
			return fmt.Errorf("%s is required", d.name)
		}
		if filepath.IsAbs(d.value) || strings.HasPrefix(d.value, "/") {
			return fmt.Errorf("%s %q must be relative", d.name, d.value)
		}
	}

	if l.Namespace == "" {
		return fmt.Errorf("namespace is required")
	}

	if !strings.HasPrefix(l.ProfileExtension, ".") || len(l.ProfileExtension) < 2 {
		return fmt.Errorf("profileExtension %q must start with a dot", l.ProfileExtension)
	}

	return nil
}
