package main

import (
	"errors"

	"github.com/srg/gaitmon/pkg/connection"
)

// FormatUserError renders err for terminal display. Transport failures
// already carry their guidance text; everything else passes through.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}
	var opErr *connection.OpError
	if errors.As(err, &opErr) {
		return opErr.Error()
	}
	return err.Error()
}
