package remap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yousuf/profremap/internal/config"
	"github.com/yousuf/profremap/internal/cpuprofile"
	"github.com/yousuf/profremap/internal/sourcemap"
)

// Stats summarises one remapping pass.
type Stats struct {
	// Records with a position field group that were visited
	Records int `json:"records"`
	// Records rewritten from a source map
	Remapped int `json:"remapped"`
	// Records without a usable position or without a map file
	Skipped int `json:"skipped"`
	// Records whose map had no original source for the position
	Unresolved int `json:"unresolved"`
	// Distinct source maps loaded during the pass
	MapsLoaded int `json:"mapsLoaded"`
}

// Remapper rewrites generated positions in profiles to original source positions.
// A Remapper is safe for concurrent use; every pass gets its own source map cache.
type Remapper struct {
	logger  log.Logger
	layout  config.Layout
	loader  sourcemap.Loader
	metrics *sourcemap.Metrics
}

// New creates a Remapper. Cache metrics are registered on reg.
func New(logger log.Logger, reg prometheus.Registerer, layout config.Layout, loader sourcemap.Loader) *Remapper {
	return &Remapper{
		logger:  logger,
		layout:  layout,
		loader:  loader,
		metrics: sourcemap.NewMetrics(reg),
	}
}

// Remap rewrites every call frame and location entry of p in place, in document
// order: all nodes first, then the $vscode locations. Records that cannot be
// remapped are left untouched. Reading or parsing a source map fails the whole pass.
func (r *Remapper) Remap(ctx context.Context, p *cpuprofile.Profile, projectRoot string) (stats Stats, err error) {
	ps, err := r.newPass(projectRoot)
	if err != nil {
		return Stats{}, err
	}
	defer func() {
		if closeErr := ps.close(); err == nil && closeErr != nil {
			err = closeErr
		}
		stats = ps.stats
	}()

	start := time.Now()

	for _, node := range p.Nodes {
		if err := ctx.Err(); err != nil {
			return ps.stats, err
		}
		if node == nil || node.CallFrame == nil {
			continue
		}
		if err := ps.rewrite(callFrame{node.CallFrame}); err != nil {
			return ps.stats, err
		}
	}

	if p.VSCode != nil {
		for _, loc := range p.VSCode.Locations {
			if err := ctx.Err(); err != nil {
				return ps.stats, err
			}
			if loc == nil {
				continue
			}
			if loc.CallFrame != nil {
				if err := ps.rewrite(callFrame{loc.CallFrame}); err != nil {
					return ps.stats, err
				}
			}
			for _, entry := range loc.Locations {
				if entry == nil {
					continue
				}
				if err := ps.rewrite(locationEntry{entry}); err != nil {
					return ps.stats, err
				}
			}
		}
	}

	level.Debug(r.logger).Log(
		"msg", "profile remapped",
		"records", ps.stats.Records,
		"remapped", ps.stats.Remapped,
		"skipped", ps.stats.Skipped,
		"unresolved", ps.stats.Unresolved,
		"maps", ps.cache.Loaded(),
		"duration", time.Since(start),
	)
	return ps.stats, nil
}

// pass is the state of one remapping run over a document.
type pass struct {
	layout      config.Layout
	projectRoot string
	cache       *sourcemap.Cache
	stats       Stats
}

func (r *Remapper) newPass(projectRoot string) (*pass, error) {
	root, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project root: %w", err)
	}
	return &pass{
		layout:      r.layout,
		projectRoot: root,
		cache:       sourcemap.NewCache(r.loader, r.metrics),
	}, nil
}

func (ps *pass) close() error {
	ps.stats.MapsLoaded = ps.cache.Loaded()
	return ps.cache.Close()
}

// position gives the rewrite routine access to one record's position fields.
type position interface {
	// generated returns the generated file (relative to the scripts directory)
	// and the 0-indexed position, or false when the record has no usable position.
	generated() (file string, line, column int, ok bool)
	// relocate stores a resolved position. name is empty when the map has none.
	relocate(path string, line, column int, name string)
}

// rewrite resolves the record's generated position and relocates it. All of the
// record's position fields change together or not at all.
func (ps *pass) rewrite(rec position) error {
	ps.stats.Records++

	file, line, column, ok := rec.generated()
	if !ok {
		ps.stats.Skipped++
		return nil
	}

	mapPath := mapFilePath(ps.layout, ps.projectRoot, file)
	if _, err := os.Stat(mapPath); err != nil {
		// No map means the file is not ours to remap
		ps.stats.Skipped++
		return nil
	}

	// Profiles use 0-indexed lines, source maps 1-indexed
	orig, found, err := ps.cache.Resolve(mapPath, line+1, column)
	if err != nil {
		return fmt.Errorf("failed to resolve %s:%d:%d: %w", file, line, column, err)
	}
	if !found {
		ps.stats.Unresolved++
		return nil
	}

	// A missing original line is treated as line 1. This can make a failed
	// lookup look like a hit at the top of a file.
	origLine := orig.Line
	if origLine <= 0 {
		origLine = 1
	}

	rec.relocate(
		ProjectRelativePath(ps.layout, orig.Source, mapPath, ps.projectRoot),
		origLine-1,
		orig.Column,
		orig.Name,
	)
	ps.stats.Remapped++
	return nil
}

// callFrame adapts a profile call frame to position.
type callFrame struct {
	*cpuprofile.CallFrame
}

func (c callFrame) generated() (string, int, int, bool) {
	if c.URL == "" || !c.HasLineNumber() || c.LineNumber < 0 {
		return "", 0, 0, false
	}
	return c.URL, c.LineNumber, c.ColumnNumber, true
}

func (c callFrame) relocate(path string, line, column int, name string) {
	c.URL = path
	c.LineNumber = line
	c.ColumnNumber = column
	if name != "" {
		c.FunctionName = name
	}
}

// locationEntry adapts a $vscode location entry to position. The entry names
// its own generated file through source.path.
type locationEntry struct {
	*cpuprofile.LocationEntry
}

func (e locationEntry) generated() (string, int, int, bool) {
	if e.Source == nil || e.Source.Path == "" || !e.HasLineNumber() || e.LineNumber < 0 {
		return "", 0, 0, false
	}
	return e.Source.Path, e.LineNumber, e.ColumnNumber, true
}

func (e locationEntry) relocate(path string, line, column int, _ string) {
	e.LineNumber = line
	e.ColumnNumber = column
	e.Source.Path = path
	e.Source.Name = path
}
