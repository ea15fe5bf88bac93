package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profremap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadKeepsDefaults(t *testing.T) {
	layout, err := Load(writeConfig(t, "namespace: addons\n"))
	require.NoError(t, err)

	want := Default()
	want.Namespace = "addons"
	require.Equal(t, want, layout)
}

func TestLoadOverrides(t *testing.T) {
	layout, err := Load(writeConfig(t, `
buildDir: build/out
scriptsDir: behavior/scripts
namespace: src
profileExtension: .json
`))
	require.NoError(t, err)
	require.Equal(t, Layout{
		BuildDir:         "build/out",
		ScriptsDir:       "behavior/scripts",
		Namespace:        "src",
		ProfileExtension: ".json",
	}, layout)

	require.Equal(t, filepath.Join("/p", "build", "out", "behavior", "scripts"), layout.ScriptsRoot("/p"))
}

func TestLoadInvalid(t *testing.T) {
	tests := map[string]string{
		"absolute build dir": "buildDir: /tmp/build\n",
		"empty namespace":    "namespace: \"\"\n",
		"bad extension":      "profileExtension: cpuprofile\n",
		"not yaml":           "buildDir: [unterminated\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			require.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestDefaultLayoutPaths(t *testing.T) {
	l := Default()
	require.Equal(t, filepath.Join("/root", ".regolith", "tmp"), l.BuildRoot("/root"))
	require.Equal(t, filepath.Join("/root", ".regolith", "tmp", "BP", "scripts"), l.ScriptsRoot("/root"))
}
