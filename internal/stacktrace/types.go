package stacktrace

// Frame represents a single stack frame parsed from a stack trace
type Frame struct {
	// The raw original line from the stack trace
	Raw string
	// Function name (or '<anonymous>' if anonymous)
	FunctionName string
	// Generated file path as printed by the engine
	FileName string
	// Line number (1-indexed), nil if not available
	LineNumber *int
	// Column number (1-indexed), nil if not available
	ColumnNumber *int
	// Whether this is a native call
	IsNative bool
}

// HasPosition reports whether the frame points at a file position.
func (f Frame) HasPosition() bool {
	return !f.IsNative && f.LineNumber != nil && f.ColumnNumber != nil
}

// MappedFrame is a frame with the original source information resolved from a source map
type MappedFrame struct {
	Frame
	// Original source file path, rewritten into the project namespace
	OriginalFileName *string
	// Original line number (1-indexed)
	OriginalLineNumber *int
	// Original column number (1-indexed)
	OriginalColumnNumber *int
	// Original function/symbol name from source map
	OriginalName *string
	// Whether mapping was successful
	Mapped bool
}
