package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-kit/log"
	"github.com/google/pprof/profile"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/yousuf/profremap/internal/config"
	"github.com/yousuf/profremap/internal/remap"
	"github.com/yousuf/profremap/internal/sourcemap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const mainMap = `{
  "version": 3,
  "sources": ["../../src/index.ts"],
  "names": ["foo"],
  "mappings": ";;;;CACAA;GAQE"
}`

const trace = `{"nodes":[{"id":1,"callFrame":{"functionName":"(root)","url":"","lineNumber":-1,"columnNumber":-1},"children":[2]},{"id":2,"callFrame":{"functionName":"tick","url":"main.js","lineNumber":4,"columnNumber":1}}],"startTime":0,"endTime":30,"samples":[2,2],"timeDeltas":[10,20]}`

func setup(t *testing.T, profiles map[string]string) (string, *remap.Remapper) {
	t.Helper()

	root := t.TempDir()
	scripts := config.Default().ScriptsRoot(root)
	require.NoError(t, os.MkdirAll(scripts, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(scripts, "main.js.map"), []byte(mainMap), 0o644))
	for name, content := range profiles {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(content), 0o644))
	}

	logger := log.NewNopLogger()
	return root, remap.New(logger, prometheus.NewRegistry(), config.Default(), sourcemap.NewFileLoader(logger))
}

func TestRemapProfiles(t *testing.T) {
	root, remapper := setup(t, map[string]string{
		"a.cpuprofile": trace,
		"b.cpuprofile": trace,
	})
	profiles := []string{filepath.Join(root, "a.cpuprofile"), filepath.Join(root, "b.cpuprofile")}

	var stdout bytes.Buffer
	err := remapProfiles(context.Background(), log.NewNopLogger(), remapper, config.Default(), root, profiles, true, 2, &stdout)
	require.NoError(t, err)

	outputs := []string{filepath.Join(root, "a-remapped.cpuprofile"), filepath.Join(root, "b-remapped.cpuprofile")}
	require.Equal(t, strings.Join(outputs, "\n")+"\n", stdout.String())

	for _, output := range outputs {
		data, err := os.ReadFile(output)
		require.NoError(t, err)
		require.Contains(t, string(data), `"url": "packs/src/index.ts"`)

		f, err := os.Open(output + ".pb.gz")
		require.NoError(t, err)
		prof, err := profile.Parse(f)
		f.Close()
		require.NoError(t, err)
		require.Len(t, prof.Sample, 1)
		require.Equal(t, "packs/src/index.ts", prof.Sample[0].Location[0].Line[0].Function.Filename)
	}
}

func TestRemapProfilesFailureLeavesNoOutput(t *testing.T) {
	root, remapper := setup(t, map[string]string{
		"good.cpuprofile": trace,
		"bad.cpuprofile":  `{"nodes": [`,
	})
	profiles := []string{filepath.Join(root, "good.cpuprofile"), filepath.Join(root, "bad.cpuprofile")}

	var stdout bytes.Buffer
	err := remapProfiles(context.Background(), log.NewNopLogger(), remapper, config.Default(), root, profiles, false, 1, &stdout)
	require.ErrorContains(t, err, "bad.cpuprofile")
	require.NoFileExists(t, filepath.Join(root, "bad-remapped.cpuprofile"))
}

func TestRemapStack(t *testing.T) {
	root, remapper := setup(t, nil)

	var stdout bytes.Buffer
	stdin := strings.NewReader("Error: boom\n    at tick (main.js:5:2)\n")
	require.NoError(t, remapStack(context.Background(), remapper, root, "", false, stdin, &stdout))
	require.Equal(t, "Error: boom\n    at foo (packs/src/index.ts:2:1)\n", stdout.String())

	file := filepath.Join(root, "trace.txt")
	require.NoError(t, os.WriteFile(file, []byte("at main.js:6:4"), 0o644))

	stdout.Reset()
	require.NoError(t, remapStack(context.Background(), remapper, root, file, false, nil, &stdout))
	require.Equal(t, "at <anonymous> (packs/src/index.ts:10:3)", stdout.String())
}

func TestRemapStackStatus(t *testing.T) {
	root, remapper := setup(t, nil)

	var stdout bytes.Buffer
	stdin := strings.NewReader("Error: boom\n    at tick (main.js:5:2)\n    at vendor/lib.js:1:1\n")
	require.NoError(t, remapStack(context.Background(), remapper, root, "", true, stdin, &stdout))
	require.Equal(t, "    at foo (packs/src/index.ts:2:1) ✓ mapped\n    at vendor/lib.js:1:1 ✗ unmapped\n", stdout.String())
}
