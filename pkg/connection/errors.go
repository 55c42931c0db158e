package connection

import (
	"fmt"
	"strings"
)

// Hint texts appended to recognizable transport failures. The substring
// matching is case-insensitive; unrecognized errors pass through with a
// generic prefix naming the device.
const (
	HintNotConnectable = "the device does not accept connections; move it closer and scan again"
	HintNotFound       = "the device is no longer advertised; run a new scan before connecting"
	HintBusyRetry      = "the device appears busy or out of range; wait a moment and retry"
	HintRefused        = "the device refused the connection; power-cycle it and try again"
)

// hintPatterns maps transport failure substrings to their fixed hint, in
// match priority order.
var hintPatterns = []struct {
	substring string
	hint      string
}{
	{"not connectable", HintNotConnectable},
	{"not found", HintNotFound},
	{"timeout", HintBusyRetry},
	{"failed after retries", HintBusyRetry},
	{"connection refused", HintRefused},
}

// OpError is a transport call failure enriched with user guidance.
type OpError struct {
	Op         string // "connect", "disconnect", ...
	DeviceName string // scanned display name, or "device"
	Hint       string // fixed guidance, empty when unrecognized
	Err        error
}

func (e *OpError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s %s: %s (%v)", e.Op, e.DeviceName, e.Hint, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.DeviceName, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// enrichError wraps a transport failure, attaching the fixed hint for
// recognizable failure modes.
func enrichError(op, deviceName string, err error) error {
	if err == nil {
		return nil
	}
	if deviceName == "" {
		deviceName = "device"
	}

	msg := strings.ToLower(err.Error())
	for _, p := range hintPatterns {
		if strings.Contains(msg, p.substring) {
			return &OpError{Op: op, DeviceName: deviceName, Hint: p.hint, Err: err}
		}
	}
	return &OpError{Op: op, DeviceName: deviceName, Err: err}
}
