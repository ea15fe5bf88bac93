package sourcemap

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	gosourcemap "github.com/go-sourcemap/sourcemap"
)

// FileLoader loads source maps from disk with github.com/go-sourcemap/sourcemap.
type FileLoader struct {
	logger log.Logger
}

// NewFileLoader creates a new loader
func NewFileLoader(logger log.Logger) *FileLoader {
	return &FileLoader{logger: logger}
}

// Load reads the map file and parses it. Read and parse failures are returned as is
// so that the caller can abort the pass.
func (l *FileLoader) Load(path string) (Consumer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read source map: %w", err)
	}

	consumer, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse source map %s: %w", path, err)
	}

	level.Debug(l.logger).Log("msg", "source map loaded", "path", path, "size", humanize.Bytes(uint64(len(data))))
	return consumer, nil
}

// Parse parses a version 3 source map document.
func Parse(data []byte) (Consumer, error) {
	c, err := gosourcemap.Parse("", data)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Mappings string `json:"mappings"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	return &mapConsumer{consumer: c, firstColumns: firstColumns(raw.Mappings)}, nil
}

// mapConsumer wraps a parsed go-sourcemap consumer
type mapConsumer struct {
	consumer *gosourcemap.Consumer
	// first generated column mapped on every generated line, -1 for lines
	// without mappings. nil for sectioned maps.
	firstColumns []int
}

func (m *mapConsumer) OriginalPosition(line, column int) (Position, bool) {
	if m.consumer == nil {
		return Position{}, false
	}

	// go-sourcemap falls back to the last mapping of an earlier line when nothing
	// on the requested line precedes the column. Such positions have no source.
	if m.firstColumns != nil {
		if line < 1 || line > len(m.firstColumns) {
			return Position{}, false
		}
		if first := m.firstColumns[line-1]; first < 0 || column < first {
			return Position{}, false
		}
	}

	// go-sourcemap expects 1-indexed line and 0-indexed column and answers the same way
	file, name, origLine, origCol, ok := m.consumer.Source(line, column)
	if !ok || file == "" {
		return Position{}, false
	}

	return Position{
		Source: file,
		Line:   origLine,
		Column: origCol,
		Name:   name,
	}, true
}

func (m *mapConsumer) Close() error {
	m.consumer = nil
	return nil
}

const base64Digits = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

// firstColumns decodes the generated column of the first segment of every line
// in a mappings string.
func firstColumns(mappings string) []int {
	if mappings == "" {
		return nil
	}

	lines := strings.Split(mappings, ";")
	columns := make([]int, len(lines))
	for i, line := range lines {
		columns[i] = -1
		if column, ok := decodeVLQ(line); ok {
			columns[i] = column
		}
	}
	return columns
}

// decodeVLQ decodes the first base64 VLQ value of s.
func decodeVLQ(s string) (int, bool) {
	var value, shift int
	for i := 0; i < len(s); i++ {
		digit := strings.IndexByte(base64Digits, s[i])
		if digit < 0 {
			return 0, false
		}
		value += (digit & 31) << shift
		if digit&32 == 0 {
			if value&1 == 1 {
				return -(value >> 1), true
			}
			return value >> 1, true
		}
		shift += 5
	}
	return 0, false
}
