package remap

import (
	"context"
	"strings"

	"github.com/go-kit/log/level"

	"github.com/yousuf/profremap/internal/stacktrace"
)

// RemapStackTrace rewrites every frame of a JavaScript stack trace whose file has
// a source map in the scripts directory. Positions in the text are 1-based.
// Lines that are not frames, native frames and frames without a map are kept verbatim.
func (r *Remapper) RemapStackTrace(ctx context.Context, trace string, projectRoot string) (out string, stats Stats, err error) {
	ps, err := r.newPass(projectRoot)
	if err != nil {
		return "", Stats{}, err
	}
	defer func() {
		if closeErr := ps.close(); err == nil && closeErr != nil {
			err = closeErr
		}
		stats = ps.stats
	}()

	lines := strings.Split(trace, "\n")
	for i, line := range lines {
		if err := ctx.Err(); err != nil {
			return "", ps.stats, err
		}

		frame := stacktrace.ParseLine(line)
		if frame == nil {
			continue
		}

		mapped := &stacktrace.MappedFrame{Frame: *frame}
		if err := ps.rewrite(stackFrame{mapped}); err != nil {
			return "", ps.stats, err
		}
		lines[i] = stacktrace.FormatFrame(*mapped)
	}

	level.Debug(r.logger).Log(
		"msg", "stack trace remapped",
		"frames", ps.stats.Records,
		"remapped", ps.stats.Remapped,
	)
	return strings.Join(lines, "\n"), ps.stats, nil
}

// RemapFrames rewrites parsed stack frames the same way RemapStackTrace does and
// reports for each frame whether it was mapped.
func (r *Remapper) RemapFrames(ctx context.Context, frames []stacktrace.Frame, projectRoot string) (mapped []stacktrace.MappedFrame, stats Stats, err error) {
	ps, err := r.newPass(projectRoot)
	if err != nil {
		return nil, Stats{}, err
	}
	defer func() {
		if closeErr := ps.close(); err == nil && closeErr != nil {
			err = closeErr
		}
		stats = ps.stats
	}()

	mapped = make([]stacktrace.MappedFrame, len(frames))
	for i, frame := range frames {
		if err := ctx.Err(); err != nil {
			return nil, ps.stats, err
		}

		mapped[i] = stacktrace.MappedFrame{Frame: frame}
		if err := ps.rewrite(stackFrame{&mapped[i]}); err != nil {
			return nil, ps.stats, err
		}
	}
	return mapped, ps.stats, nil
}

// stackFrame adapts a parsed stack frame to position, converting between the
// 1-based text positions and the 0-based positions used by the rewrite routine.
type stackFrame struct {
	*stacktrace.MappedFrame
}

func (f stackFrame) generated() (string, int, int, bool) {
	if !f.HasPosition() || f.FileName == "" || *f.LineNumber < 1 {
		return "", 0, 0, false
	}
	column := *f.ColumnNumber - 1
	if column < 0 {
		column = 0
	}
	return f.FileName, *f.LineNumber - 1, column, true
}

func (f stackFrame) relocate(path string, line, column int, name string) {
	line++
	column++
	f.OriginalFileName = &path
	f.OriginalLineNumber = &line
	f.OriginalColumnNumber = &column
	if name != "" {
		f.OriginalName = &name
	}
	f.Mapped = true
}
