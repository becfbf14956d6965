package main

import (
	"errors"
)

const (
	exitFailure  = 1
	exitWarnings = 2
)

// exitError carries a process exit status alongside the message printed by main.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

func exitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitFailure
}
