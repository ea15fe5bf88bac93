package pprofexport

import (
	"fmt"
	"io"
	"strconv"

	"github.com/google/pprof/profile"

	"github.com/yousuf/profremap/internal/cpuprofile"
)

// microsecond timestamps and deltas in .cpuprofile documents
const usec = 1000

// node is a profile node with the location it becomes and its parent in the call tree.
type node struct {
	loc       *profile.Location
	parent    int64
	hasParent bool
}

// Convert builds a pprof profile from a (usually remapped) .cpuprofile document.
// Every node becomes one location, call frames sharing a name and position share
// a function. Samples are aggregated per leaf node with their count and the sum
// of their time deltas. Documents without "samples" fall back to node hit counts.
func Convert(p *cpuprofile.Profile) (*profile.Profile, error) {
	var startTime, endTime int64
	if _, err := p.Field("startTime", &startTime); err != nil {
		return nil, fmt.Errorf("startTime: %w", err)
	}
	if _, err := p.Field("endTime", &endTime); err != nil {
		return nil, fmt.Errorf("endTime: %w", err)
	}

	prof := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "samples", Unit: "count"},
			{Type: "cpu", Unit: "nanoseconds"},
		},
		PeriodType:    &profile.ValueType{Type: "cpu", Unit: "nanoseconds"},
		TimeNanos:     startTime * usec,
		DurationNanos: (endTime - startTime) * usec,
	}
	if prof.DurationNanos < 0 {
		prof.DurationNanos = 0
	}

	// Node IDs are not guaranteed to be usable as location IDs, so locations
	// are numbered in document order.
	functions := make(map[string]*profile.Function)
	nodes := make(map[int64]*node, len(p.Nodes))
	order := make([]int64, 0, len(p.Nodes))
	hitCounts := make(map[int64]int64)

	for _, n := range p.Nodes {
		if n == nil {
			continue
		}
		var id int64
		ok, err := n.Field("id", &id)
		if err != nil {
			return nil, fmt.Errorf("node id: %w", err)
		}
		if !ok {
			continue
		}

		fn, line := function(prof, functions, n.CallFrame)
		loc := &profile.Location{
			ID:   uint64(len(prof.Location) + 1),
			Line: []profile.Line{{Function: fn, Line: line}},
		}
		prof.Location = append(prof.Location, loc)
		nodes[id] = &node{loc: loc}
		order = append(order, id)

		var hitCount int64
		if _, err := n.Field("hitCount", &hitCount); err != nil {
			return nil, fmt.Errorf("node %d hitCount: %w", id, err)
		}
		hitCounts[id] = hitCount
	}

	for _, n := range p.Nodes {
		if n == nil {
			continue
		}
		var id int64
		if ok, _ := n.Field("id", &id); !ok {
			continue
		}
		var children []int64
		if _, err := n.Field("children", &children); err != nil {
			return nil, fmt.Errorf("node %d children: %w", id, err)
		}
		for _, child := range children {
			if c, ok := nodes[child]; ok {
				c.parent, c.hasParent = id, true
			}
		}
	}

	counts, nanos, err := aggregate(p, hitCounts)
	if err != nil {
		return nil, err
	}

	for _, id := range order {
		if counts[id] == 0 && nanos[id] == 0 {
			continue
		}
		prof.Sample = append(prof.Sample, &profile.Sample{
			Location: stack(nodes, id),
			Value:    []int64{counts[id], nanos[id]},
		})
	}

	return prof, nil
}

// Write converts p and writes it gzip-compressed in the pprof protobuf format.
func Write(w io.Writer, p *cpuprofile.Profile) error {
	prof, err := Convert(p)
	if err != nil {
		return fmt.Errorf("failed to convert profile: %w", err)
	}
	if err := prof.CheckValid(); err != nil {
		return fmt.Errorf("invalid pprof profile: %w", err)
	}
	return prof.Write(w)
}

// function returns the pprof function for a call frame, creating it on first use,
// and the 1-indexed line the frame points at (0 when unknown).
func function(prof *profile.Profile, functions map[string]*profile.Function, cf *cpuprofile.CallFrame) (*profile.Function, int64) {
	name, file := "(unknown)", ""
	var line, column int64
	if cf != nil {
		if cf.FunctionName != "" {
			name = cf.FunctionName
		} else {
			name = "(anonymous)"
		}
		file = cf.URL
		if cf.HasLineNumber() && cf.LineNumber >= 0 {
			line = int64(cf.LineNumber) + 1
			column = int64(cf.ColumnNumber)
		}
	}

	key := name + "\x00" + file + "\x00" + strconv.FormatInt(line, 10) + ":" + strconv.FormatInt(column, 10)
	fn, ok := functions[key]
	if !ok {
		fn = &profile.Function{
			ID:         uint64(len(prof.Function) + 1),
			Name:       name,
			SystemName: name,
			Filename:   file,
			StartLine:  line,
		}
		functions[key] = fn
		prof.Function = append(prof.Function, fn)
	}
	return fn, line
}

// aggregate sums sample counts and time per node. Time deltas are attributed to
// the sample they precede.
func aggregate(p *cpuprofile.Profile, hitCounts map[int64]int64) (map[int64]int64, map[int64]int64, error) {
	var samples, deltas []int64
	hasSamples, err := p.Field("samples", &samples)
	if err != nil {
		return nil, nil, fmt.Errorf("samples: %w", err)
	}
	if !hasSamples {
		return hitCounts, map[int64]int64{}, nil
	}
	if _, err := p.Field("timeDeltas", &deltas); err != nil {
		return nil, nil, fmt.Errorf("timeDeltas: %w", err)
	}

	counts := make(map[int64]int64)
	nanos := make(map[int64]int64)
	for i, id := range samples {
		counts[id]++
		if i < len(deltas) && deltas[i] > 0 {
			nanos[id] += deltas[i] * usec
		}
	}
	return counts, nanos, nil
}

// stack walks from a leaf node to the root of the call tree.
func stack(nodes map[int64]*node, leaf int64) []*profile.Location {
	var locs []*profile.Location
	for id := leaf; len(locs) <= len(nodes); {
		n, ok := nodes[id]
		if !ok {
			break
		}
		locs = append(locs, n.loc)
		if !n.hasParent {
			break
		}
		id = n.parent
	}
	return locs
}
