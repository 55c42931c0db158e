// Package validation sanitizes user-entered session fields. Error
// messages are surfaced to the user verbatim, so they name the rule that
// failed rather than internal details.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// Rules bounds and patterns for session fields.
const (
	SessionNameMinLength = 1
	SessionNameMaxLength = 100
	SubjectIDMinLength   = 1
	SubjectIDMaxLength   = 50
	NotesMaxLength       = 1000
)

var (
	sessionNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_\-\s]+$`)
	subjectIDPattern   = regexp.MustCompile(`^[a-zA-Z0-9_\-]+$`)
	deviceIDPattern    = regexp.MustCompile(`^[a-fA-F0-9\-:]+$`)

	// reservedNames are rejected as session names to keep exported files
	// portable across filesystems.
	reservedNames = map[string]struct{}{
		"CON": {}, "PRN": {}, "AUX": {}, "NUL": {},
		"COM1": {}, "COM2": {}, "COM3": {}, "COM4": {}, "COM5": {},
		"COM6": {}, "COM7": {}, "COM8": {}, "COM9": {},
		"LPT1": {}, "LPT2": {}, "LPT3": {}, "LPT4": {}, "LPT5": {},
		"LPT6": {}, "LPT7": {}, "LPT8": {}, "LPT9": {},
	}
)

// Error is a field validation failure whose message is shown to the user
// as-is.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// SessionName validates and trims a session name.
func SessionName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)

	if len(trimmed) < SessionNameMinLength {
		return "", &Error{Field: "session_name", Message: fmt.Sprintf("Session name must be at least %d characters long", SessionNameMinLength)}
	}
	if len(trimmed) > SessionNameMaxLength {
		return "", &Error{Field: "session_name", Message: fmt.Sprintf("Session name must be no more than %d characters long", SessionNameMaxLength)}
	}
	if !sessionNamePattern.MatchString(trimmed) {
		return "", &Error{Field: "session_name", Message: "Session name can only contain letters, numbers, spaces, hyphens, and underscores"}
	}
	if _, reserved := reservedNames[strings.ToUpper(trimmed)]; reserved {
		return "", &Error{Field: "session_name", Message: fmt.Sprintf("'%s' is a reserved name and cannot be used", trimmed)}
	}
	return trimmed, nil
}

// SubjectID validates and trims a subject identifier.
func SubjectID(id string) (string, error) {
	trimmed := strings.TrimSpace(id)

	if len(trimmed) < SubjectIDMinLength {
		return "", &Error{Field: "subject_id", Message: fmt.Sprintf("Subject ID must be at least %d characters long", SubjectIDMinLength)}
	}
	if len(trimmed) > SubjectIDMaxLength {
		return "", &Error{Field: "subject_id", Message: fmt.Sprintf("Subject ID must be no more than %d characters long", SubjectIDMaxLength)}
	}
	if !subjectIDPattern.MatchString(trimmed) {
		return "", &Error{Field: "subject_id", Message: "Subject ID can only contain letters, numbers, hyphens, and underscores"}
	}
	return trimmed, nil
}

// Notes validates and trims free-form session notes. Notes allow a wider
// charset than names, rejecting only markup-dangerous characters.
func Notes(notes string) (string, error) {
	trimmed := strings.TrimSpace(notes)

	if len(trimmed) > NotesMaxLength {
		return "", &Error{Field: "notes", Message: fmt.Sprintf("Notes must be no more than %d characters long", NotesMaxLength)}
	}
	for _, ch := range []string{"<", ">", "\x00"} {
		if strings.Contains(trimmed, ch) {
			return "", &Error{Field: "notes", Message: fmt.Sprintf("Notes cannot contain the character '%s'", ch)}
		}
	}
	return trimmed, nil
}

// DeviceID validates a transport device identifier (UUID or MAC form).
func DeviceID(id string) (string, error) {
	trimmed := strings.TrimSpace(id)

	if trimmed == "" {
		return "", &Error{Field: "device_id", Message: "Device ID cannot be empty"}
	}
	if !deviceIDPattern.MatchString(trimmed) {
		return "", &Error{Field: "device_id", Message: "Device ID must be in UUID or MAC address format"}
	}
	return trimmed, nil
}
