package stacktrace

import (
	"fmt"
	"regexp"
	"strings"
)

var indentPattern = regexp.MustCompile(`^(\s*)`)

// FormatFrame formats a single mapped stack frame back into "at fn (file:line:column)" form.
func FormatFrame(frame MappedFrame) string {
	// Unmapped and native frames are printed as they were read
	if !frame.Mapped || frame.IsNative {
		return frame.Raw
	}

	functionName := frame.FunctionName
	if frame.OriginalName != nil && *frame.OriginalName != "" {
		functionName = *frame.OriginalName
	}

	fileName := frame.FileName
	if frame.OriginalFileName != nil {
		fileName = *frame.OriginalFileName
	}

	line := 0
	if frame.OriginalLineNumber != nil {
		line = *frame.OriginalLineNumber
	} else if frame.LineNumber != nil {
		line = *frame.LineNumber
	}

	column := 0
	if frame.OriginalColumnNumber != nil {
		column = *frame.OriginalColumnNumber
	} else if frame.ColumnNumber != nil {
		column = *frame.ColumnNumber
	}

	indent := ""
	if matches := indentPattern.FindStringSubmatch(frame.Raw); len(matches) > 1 {
		indent = matches[1]
	}

	return fmt.Sprintf("%sat %s (%s:%d:%d)", indent, functionName, fileName, line, column)
}

// FormatWithStatus appends a mapped/unmapped marker to every frame, for debugging.
func FormatWithStatus(frames []MappedFrame) string {
	lines := make([]string, len(frames))
	for i, frame := range frames {
		status := "✗ unmapped"
		if frame.Mapped {
			status = "✓ mapped"
		}
		lines[i] = fmt.Sprintf("%s %s", FormatFrame(frame), status)
	}
	return strings.Join(lines, "\n")
}
