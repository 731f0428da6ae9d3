package linker

import (
	"errors"
	"fmt"
)

var (
	// ErrNoteParse is wrapped by the cause of every models.ParseFailure.
	ErrNoteParse = errors.New("note parse failed")
	// ErrSpanUnreadable marks a linkable span that could not be read as text.
	ErrSpanUnreadable = errors.New("span is not readable text")
	// ErrPatternCompilation is returned by Resolve when the combined pattern
	// cannot be built. No result is produced in that case.
	ErrPatternCompilation = errors.New("pattern compilation failed")
)

// CompileError reports a combined pattern that failed to compile.
type CompileError struct {
	Groups int
	Err    error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("linker: compile pattern with %d groups: %v", e.Groups, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

func (e *CompileError) Is(target error) bool { return target == ErrPatternCompilation }
