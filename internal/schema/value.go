package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrUnresolvedField marks a field none of whose declared paths held a value.
	ErrUnresolvedField = errors.New("unresolved field")
	// ErrInvalidField marks a field that resolved to a value of the wrong kind.
	ErrInvalidField = errors.New("invalid field value")
)

// UnresolvedError names the field and the paths that were tried.
type UnresolvedError struct {
	Field string
	Tried []string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("unresolved field %s (tried %s)", e.Field, strings.Join(e.Tried, ", "))
}

func (e *UnresolvedError) Is(target error) bool { return target == ErrUnresolvedField }

// Value is the outcome of extracting one field.
type Value struct {
	Field    string
	Path     string
	Raw      any
	Resolved bool
	tried    []string
}

func (v Value) unresolved() error {
	return &UnresolvedError{Field: v.Field, Tried: v.tried}
}

// String returns the value as text.
func (v Value) String() (string, error) {
	if !v.Resolved {
		return "", v.unresolved()
	}
	switch raw := v.Raw.(type) {
	case string:
		return strings.TrimSpace(raw), nil
	case json.Number:
		return raw.String(), nil
	case float64:
		return strconv.FormatFloat(raw, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(raw), nil
	default:
		return fmt.Sprint(raw), nil
	}
}

// StringOr returns the text or fallback when unresolved.
func (v Value) StringOr(fallback string) string {
	s, err := v.String()
	if err != nil {
		return fallback
	}
	return s
}

// Number parses the value as a decimal amount. Currency symbols and
// thousands separators are accepted; "(12.50)" reads as -12.5.
func (v Value) Number() (float64, error) {
	if !v.Resolved {
		return 0, v.unresolved()
	}
	switch raw := v.Raw.(type) {
	case json.Number:
		f, err := raw.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %s at %s: %v", ErrInvalidField, v.Field, v.Path, err)
		}
		return f, nil
	case float64:
		return raw, nil
	case int:
		return float64(raw), nil
	case string:
		return parseAmount(v, raw)
	default:
		return 0, fmt.Errorf("%w: %s at %s is %T", ErrInvalidField, v.Field, v.Path, raw)
	}
}

func parseAmount(v Value, raw string) (float64, error) {
	cleaned := strings.TrimSpace(raw)
	negative := strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")")
	cleaned = strings.Trim(cleaned, "()")
	cleaned = strings.NewReplacer("$", "", ",", "", " ", "").Replace(cleaned)
	if cleaned == "" {
		return 0, fmt.Errorf("%w: %s at %s is blank", ErrInvalidField, v.Field, v.Path)
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s at %s: %q is not a number", ErrInvalidField, v.Field, v.Path, raw)
	}
	if negative {
		f = -f
	}
	return f, nil
}

var yearPattern = regexp.MustCompile(`(19|20)\d{2}`)

// Year reads a tax year from values such as 2021, "2021", "TY2021" or "2021-12-31".
func (v Value) Year() (int, error) {
	text, err := v.String()
	if err != nil {
		return 0, err
	}
	match := yearPattern.FindString(text)
	if match == "" {
		return 0, fmt.Errorf("%w: %s at %s: %q has no year", ErrInvalidField, v.Field, v.Path, text)
	}
	return strconv.Atoi(match)
}

var dateLayouts = []string{"2006-01-02", "01/02/2006", "1/2/2006", time.RFC3339, "2006-01-02T15:04:05"}

// Date parses common transcript date formats.
func (v Value) Date() (time.Time, error) {
	text, err := v.String()
	if err != nil {
		return time.Time{}, err
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %s at %s: %q is not a date", ErrInvalidField, v.Field, v.Path, text)
}

// Bool reads yes/no style flags. "Filed" counts as true.
func (v Value) Bool() (bool, error) {
	if !v.Resolved {
		return false, v.unresolved()
	}
	if b, ok := v.Raw.(bool); ok {
		return b, nil
	}
	text, _ := v.String()
	switch strings.ToLower(text) {
	case "true", "yes", "y", "1", "filed":
		return true, nil
	case "false", "no", "n", "0", "not filed", "unfiled":
		return false, nil
	}
	return false, fmt.Errorf("%w: %s at %s: %q is not a flag", ErrInvalidField, v.Field, v.Path, text)
}
