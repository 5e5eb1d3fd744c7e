package main

import (
	"errors"
	"fmt"
	"os"
)

// Exit codes for different failure modes
const (
	ExitSuccess = 0 // Full or partial results were reported
	ExitFatal   = 1 // Nothing could be evaluated
	ExitError   = 2 // Usage or configuration error
)

// FatalError indicates that the harness ran but had nothing to report: the
// results directory was missing, the inputs were unreadable, or no item
// finished in time.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return e.Err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var fatalErr *FatalError
	if errors.As(err, &fatalErr) {
		return ExitFatal
	}
	return ExitError
}

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}
