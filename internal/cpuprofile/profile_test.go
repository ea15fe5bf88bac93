package cpuprofile

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
)

const sampleProfile = `{
  "nodes": [
    {
      "id": 1,
      "callFrame": {
        "functionName": "(root)",
        "scriptId": "0",
        "url": "",
        "lineNumber": -1,
        "columnNumber": -1
      },
      "hitCount": 0,
      "children": [
        2
      ]
    },
    {
      "id": 2,
      "callFrame": {
        "functionName": "tick",
        "scriptId": "3",
        "url": "main.js",
        "lineNumber": 4,
        "columnNumber": 1,
        "codeType": "JS"
      },
      "hitCount": 7
    }
  ],
  "startTime": 100,
  "endTime": 200,
  "samples": [
    2,
    2
  ],
  "timeDeltas": [
    10,
    20
  ],
  "$vscode": {
    "rootPath": "/p",
    "locations": [
      {
        "callFrame": {
          "functionName": "tick",
          "url": "main.js",
          "lineNumber": 4,
          "columnNumber": 1
        },
        "locations": [
          {
            "lineNumber": 4,
            "columnNumber": 1,
            "source": {
              "name": "main.js",
              "path": "main.js",
              "sourceReference": 0
            }
          }
        ]
      }
    ]
  }
}`

func TestRoundTripIsIdentity(t *testing.T) {
	p, err := Read(strings.NewReader(sampleProfile))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, p))
	require.Equal(t, sampleProfile, buf.String())
}

func TestDecodedFields(t *testing.T) {
	p, err := Read(strings.NewReader(sampleProfile))
	require.NoError(t, err)

	require.Len(t, p.Nodes, 2)
	cf := p.Nodes[1].CallFrame
	require.Equal(t, "tick", cf.FunctionName)
	require.Equal(t, "main.js", cf.URL)
	require.Equal(t, 4, cf.LineNumber)
	require.Equal(t, 1, cf.ColumnNumber)
	require.True(t, cf.HasLineNumber())

	var id int64
	ok, err := p.Nodes[1].Field("id", &id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(2), id)

	var samples []int64
	ok, err = p.Field("samples", &samples)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []int64{2, 2}, samples)

	require.NotNil(t, p.VSCode)
	require.Len(t, p.VSCode.Locations, 1)
	loc := p.VSCode.Locations[0]
	require.Equal(t, "main.js", loc.CallFrame.URL)
	require.Len(t, loc.Locations, 1)
	require.Equal(t, "main.js", loc.Locations[0].Source.Path)
}

func TestWriteOnlyChangedMembers(t *testing.T) {
	p, err := Read(strings.NewReader(sampleProfile))
	require.NoError(t, err)

	cf := p.Nodes[1].CallFrame
	cf.URL = "packs/src/index.ts"
	cf.LineNumber = 1
	cf.ColumnNumber = 0
	cf.FunctionName = "<anonymous>"

	entry := p.VSCode.Locations[0].Locations[0]
	entry.LineNumber = 9
	entry.Source.Path = "packs/src/a.ts"
	entry.Source.Name = "packs/src/a.ts"

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, p))

	var out struct {
		Nodes []struct {
			CallFrame map[string]interface{} `json:"callFrame"`
		} `json:"nodes"`
		VSCode struct {
			RootPath  string `json:"rootPath"`
			Locations []struct {
				Locations []map[string]interface{} `json:"locations"`
			} `json:"locations"`
		} `json:"$vscode"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))

	require.Equal(t, map[string]interface{}{
		"functionName": "<anonymous>",
		"scriptId":     "3",
		"url":          "packs/src/index.ts",
		"lineNumber":   1.0,
		"columnNumber": 0.0,
		"codeType":     "JS",
	}, out.Nodes[1].CallFrame)
	require.Equal(t, "/p", out.VSCode.RootPath)
	require.Equal(t, map[string]interface{}{
		"lineNumber":   9.0,
		"columnNumber": 1.0,
		"source": map[string]interface{}{
			"name":            "packs/src/a.ts",
			"path":            "packs/src/a.ts",
			"sourceReference": 0.0,
		},
	}, out.VSCode.Locations[0].Locations[0])

	// Member order survives and HTML characters are not escaped.
	require.Contains(t, buf.String(), `"functionName": "<anonymous>",
        "scriptId": "3",
        "url": "packs/src/index.ts",`)
}

func TestLenientShapes(t *testing.T) {
	in := `{"nodes":{"not":"an array"},"$vscode":{"locations":[7,null,{"callFrame":"x","locations":[{"lineNumber":1}]}]},"extra":[1,2]}`
	p, err := Read(strings.NewReader(in))
	require.NoError(t, err)

	require.Nil(t, p.Nodes)
	require.Len(t, p.VSCode.Locations, 3)
	require.Nil(t, p.VSCode.Locations[0].CallFrame)
	require.Nil(t, p.VSCode.Locations[1])
	require.Nil(t, p.VSCode.Locations[2].CallFrame)
	require.Nil(t, p.VSCode.Locations[2].Locations[0].Source)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, p))

	var want, got interface{}
	require.NoError(t, json.Unmarshal([]byte(in), &want))
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Equal(t, want, got)
}

func TestReadErrors(t *testing.T) {
	tests := map[string]string{
		"not json":          "nope",
		"not an object":     "[1, 2]",
		"bad line number":   `{"nodes":[{"callFrame":{"url":"main.js","lineNumber":"4"}}]}`,
		"truncated":         `{"nodes":[`,
		"bad source member": `{"$vscode":{"locations":[{"locations":[{"source":{"path":3}}]}]}}`,
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Read(strings.NewReader(in))
			require.Error(t, err)
		})
	}
}

func TestReadGzip(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(sampleProfile))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	p, err := Read(&buf)
	require.NoError(t, err)
	require.Len(t, p.Nodes, 2)
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "trace.cpuprofile")
	require.NoError(t, os.WriteFile(in, []byte(sampleProfile), 0o644))

	p, err := ReadFile(in)
	require.NoError(t, err)

	out := OutputPath(in, ".cpuprofile")
	require.NoError(t, WriteFile(out, p))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, sampleProfile, string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2, "no temporary files are left behind")
}

func TestOutputPath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"trace.cpuprofile", "trace-remapped.cpuprofile"},
		{"/tmp/a.b.cpuprofile", "/tmp/a.b-remapped.cpuprofile"},
		{"trace.json", "trace.json-remapped.cpuprofile"},
		{"trace", "trace-remapped.cpuprofile"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, OutputPath(tt.in, ".cpuprofile"), tt.in)
	}
}
