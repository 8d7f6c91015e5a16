package enveloper

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrParse marks a message that is not one of the well formed message
// arrays.
var ErrParse = errors.New("malformed message")

// I is a message envelope: a JSON array whose first element is the label.
type I interface {
	Label() string
	json.Marshaler
}

// Errorf wraps ErrParse with a description of what was wrong.
func Errorf(label, format string, a ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrParse, label, fmt.Sprintf(format, a...))
}

// String decodes element i of raw as a string.
func String(label string, raw []json.RawMessage, i int) (s string,
	err error) {

	if i >= len(raw) {
		return "", Errorf(label, "missing element %d", i)
	}
	if err = json.Unmarshal(raw[i], &s); err != nil {
		return "", Errorf(label, "element %d is not a string", i)
	}
	return
}
