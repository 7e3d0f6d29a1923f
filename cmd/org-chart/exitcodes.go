package main

import (
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/iota-uz/orgchart/modules/org/services"
)

type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string {
	return e.err.Error()
}

func (e *cliError) Unwrap() error {
	return e.err
}

const (
	exitOK         = 0
	exitValidation = 2
	exitUsage      = 3
	exitDB         = 4
	exitDBWrite    = 5
)

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &cliError{code: code, err: err}
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	// cobra reports flag problems as plain errors
	if isUsageError(err) {
		return exitUsage
	}
	return 1
}

func isUsageError(err error) bool {
	msg := err.Error()
	for _, prefix := range []string{"unknown command", "unknown flag", "unknown shorthand flag", "required flag", "invalid argument", "flag needs an argument"} {
		if strings.HasPrefix(msg, prefix) {
			return true
		}
	}
	return false
}

// serviceExit maps a service failure to an exit code. Client-side problems
// are validation failures; anything else is blamed on the database, with
// writeCode used when the command was mutating.
func serviceExit(err error, writeCode int) error {
	if err == nil {
		return nil
	}
	var svcErr *services.ServiceError
	if errors.As(err, &svcErr) && svcErr.Status < http.StatusInternalServerError {
		if svcErr.Status == http.StatusConflict && svcErr.Code == services.CodeWriteConflict {
			return withCode(writeCode, err)
		}
		return withCode(exitValidation, err)
	}
	return withCode(writeCode, err)
}
