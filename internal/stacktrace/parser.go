package stacktrace

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	nativePattern = regexp.MustCompile(`at\s+(.+?)\s+\(native\)`)
	// at functionName (file:line:column)
	namedPattern = regexp.MustCompile(`at\s+(.+?)\s+\((.+?):(\d+):(\d+)\)`)
	// at file:line:column
	anonymousPattern = regexp.MustCompile(`at\s+(.+?):(\d+):(\d+)`)
	// file:line:column
	barePattern = regexp.MustCompile(`^(.+?):(\d+):(\d+)$`)
)

// ParseTrace parses every frame line of a stack trace. Lines that are not frames
// (such as the error message) are left out.
func ParseTrace(stackTrace string) []Frame {
	lines := strings.Split(stackTrace, "\n")
	frames := make([]Frame, 0, len(lines))

	for _, line := range lines {
		if frame := ParseLine(line); frame != nil {
			frames = append(frames, *frame)
		}
	}

	return frames
}

// ParseLine parses a single line from a stack trace
// Handles formats like:
// - at functionName (file:line:column)
// - at file:line:column
// - at functionName (native)
// - file:line:column
//
// It returns nil when the line is not a frame.
func ParseLine(line string) *Frame {
	trimmedLine := strings.TrimSpace(line)
	if trimmedLine == "" {
		return nil
	}

	if strings.Contains(trimmedLine, "(native)") {
		functionName := "unknown"
		if matches := nativePattern.FindStringSubmatch(trimmedLine); matches != nil {
			functionName = matches[1]
		}
		return &Frame{
			Raw:          line,
			FunctionName: functionName,
			FileName:     "native",
			IsNative:     true,
		}
	}

	if matches := namedPattern.FindStringSubmatch(trimmedLine); matches != nil {
		return positionFrame(line, matches[1], matches[2], matches[3], matches[4])
	}

	if matches := anonymousPattern.FindStringSubmatch(trimmedLine); matches != nil {
		return positionFrame(line, "<anonymous>", matches[1], matches[2], matches[3])
	}

	if matches := barePattern.FindStringSubmatch(trimmedLine); matches != nil {
		return positionFrame(line, "<anonymous>", matches[1], matches[2], matches[3])
	}

	return nil
}

func positionFrame(raw, functionName, fileName, line, column string) *Frame {
	lineNum, _ := strconv.Atoi(line)
	colNum, _ := strconv.Atoi(column)
	return &Frame{
		Raw:          raw,
		FunctionName: functionName,
		FileName:     fileName,
		LineNumber:   &lineNum,
		ColumnNumber: &colNum,
	}
}
