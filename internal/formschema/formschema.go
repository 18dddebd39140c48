// Package formschema validates registration payloads against an event's
// dynamic field schema. Everything here is a pure function of its inputs.
package formschema

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/Shivanand-hulikatti/event-registration/internal/model"
)

// DateLayout is the accepted format for date fields.
const DateLayout = "2006-01-02"

// NormalizeKey turns a field label into its storage key: lower-cased, each run
// of whitespace replaced by one underscore, question marks removed. The
// result is persisted, so the rules must stay stable.
func NormalizeKey(label string) string {
	lower := strings.ToLower(label)

	var b strings.Builder
	b.Grow(len(lower))
	inSpace := false
	for _, r := range lower {
		if isSpace(r) {
			if !inSpace {
				b.WriteByte('_')
			}
			inSpace = true
			continue
		}
		inSpace = false
		b.WriteRune(r)
	}
	return strings.ReplaceAll(b.String(), "?", "")
}

// isSpace matches the ECMAScript whitespace and line terminator classes.
func isSpace(r rune) bool {
	switch r {
	case '\t', '\n', '\v', '\f', '\r', ' ', '\u00a0', '\u2028', '\u2029', '\ufeff':
		return true
	}
	return unicode.Is(unicode.Zs, r)
}

// Validate checks submitted values against fields and returns the typed
// form data ready for storage. Values are looked up by NormalizeKey(label);
// keys that match no field are dropped. On failure the error is a
// *model.ValidationError listing every failing field in schema order.
func Validate(fields []model.FieldDefinition, values map[string]any) (model.FormData, error) {
	data := make(model.FormData, len(fields))
	var errs []model.FieldError

	for _, f := range fields {
		key := NormalizeKey(f.Label)
		raw, present := values[key]

		if !present || isEmpty(raw) {
			if f.Required {
				errs = append(errs, model.FieldError{
					Field:   key,
					Code:    model.CodeRequired,
					Message: fmt.Sprintf("%s is required", f.Label),
				})
			}
			continue
		}

		v, fe := validateField(f, key, raw)
		if fe != nil {
			errs = append(errs, *fe)
			continue
		}
		data[key] = v
	}

	if len(errs) > 0 {
		return nil, &model.ValidationError{Errors: errs}
	}
	return data, nil
}

func validateField(f model.FieldDefinition, key string, raw any) (model.FieldValue, *model.FieldError) {
	fail := func(code, format string, args ...any) *model.FieldError {
		return &model.FieldError{Field: key, Code: code, Message: fmt.Sprintf(format, args...)}
	}

	switch f.Type {
	case model.FieldEmail, model.FieldPhone:
		// Only required-ness applies to contact-style fields.
		s, ok := asText(raw, false)
		if !ok {
			return nil, fail(model.CodeTypeMismatch, "%s must be text", f.Label)
		}
		return model.TextValue(s), nil

	case model.FieldText, model.FieldTextarea, model.FieldNumber, model.FieldDate:
		s, ok := asText(raw, f.Type == model.FieldNumber)
		if !ok {
			return nil, fail(model.CodeTypeMismatch, "%s must be text", f.Label)
		}
		if f.Type == model.FieldNumber {
			if _, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
				return nil, fail(model.CodeInvalid, "%s must be a number", f.Label)
			}
		}
		if f.Type == model.FieldDate {
			if _, err := time.Parse(DateLayout, s); err != nil {
				return nil, fail(model.CodeInvalid, "%s must be a date (YYYY-MM-DD)", f.Label)
			}
		}
		n := utf8.RuneCountInString(s)
		if f.MinLength != nil && n < *f.MinLength {
			return nil, fail(model.CodeTooShort, "%s must be at least %d characters", f.Label, *f.MinLength)
		}
		if f.MaxLength != nil && n > *f.MaxLength {
			return nil, fail(model.CodeTooLong, "%s must be at most %d characters", f.Label, *f.MaxLength)
		}
		if f.Pattern != "" {
			re, err := compileFull(f.Pattern)
			if err != nil || !re.MatchString(s) {
				return nil, fail(model.CodePattern, "%s has an invalid format", f.Label)
			}
		}
		return model.TextValue(s), nil

	case model.FieldDropdown, model.FieldRadio:
		s, ok := raw.(string)
		if !ok {
			return nil, fail(model.CodeTypeMismatch, "%s must be a single option", f.Label)
		}
		if !contains(f.Options, s) {
			return nil, fail(model.CodeNotAnOption, "%s must be one of: %s", f.Label, strings.Join(f.Options, ", "))
		}
		return model.OptionValue(s), nil

	case model.FieldCheckbox:
		items, ok := asStrings(raw)
		if !ok {
			return nil, fail(model.CodeTypeMismatch, "%s must be a list of options", f.Label)
		}
		for _, item := range items {
			if !contains(f.Options, item) {
				return nil, fail(model.CodeNotAnOption, "%s: %q is not an option", f.Label, item)
			}
		}
		return model.MultiOptionValue(items), nil
	}

	return nil, fail(model.CodeInvalid, "%s has unknown type %q", f.Label, f.Type)
}

// CheckSchema enforces the schema invariants: known types, non-empty options
// for option kinds, min_length <= max_length, compilable patterns, and
// non-blank labels whose normalized keys are unique.
func CheckSchema(fields []model.FieldDefinition) error {
	if len(fields) == 0 {
		return fmt.Errorf("%w: at least one field is required", model.ErrSchemaInvalid)
	}
	seen := make(map[string]bool, len(fields))
	for i, f := range fields {
		if strings.TrimSpace(f.Label) == "" {
			return fmt.Errorf("%w: field %d has no label", model.ErrSchemaInvalid, i)
		}
		key := NormalizeKey(f.Label)
		if seen[key] {
			return fmt.Errorf("%w: duplicate field key %q", model.ErrSchemaInvalid, key)
		}
		seen[key] = true

		if !f.Type.Valid() {
			return fmt.Errorf("%w: field %q has unknown type %q", model.ErrSchemaInvalid, f.Label, f.Type)
		}
		if f.Type.HasOptions() && len(f.Options) == 0 {
			return fmt.Errorf("%w: field %q needs options", model.ErrSchemaInvalid, f.Label)
		}
		if (f.MinLength != nil && *f.MinLength < 0) || (f.MaxLength != nil && *f.MaxLength < 0) {
			return fmt.Errorf("%w: field %q has a negative length bound", model.ErrSchemaInvalid, f.Label)
		}
		if f.MinLength != nil && f.MaxLength != nil && *f.MinLength > *f.MaxLength {
			return fmt.Errorf("%w: field %q has min_length > max_length", model.ErrSchemaInvalid, f.Label)
		}
		if f.Pattern != "" {
			if _, err := compileFull(f.Pattern); err != nil {
				return fmt.Errorf("%w: field %q pattern: %v", model.ErrSchemaInvalid, f.Label, err)
			}
		}
	}
	return nil
}

func compileFull(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile(`^(?:` + pattern + `)$`)
}

func isEmpty(v any) bool {
	switch v := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []any:
		return len(v) == 0
	case []string:
		return len(v) == 0
	}
	return false
}

// asText accepts strings, and JSON numbers when allowNumber is set.
func asText(v any, allowNumber bool) (string, bool) {
	switch v := v.(type) {
	case string:
		return v, true
	case json.Number:
		if allowNumber {
			return v.String(), true
		}
	case float64:
		if allowNumber {
			return strconv.FormatFloat(v, 'f', -1, 64), true
		}
	case int:
		if allowNumber {
			return strconv.Itoa(v), true
		}
	}
	return "", false
}

func asStrings(v any) ([]string, bool) {
	switch v := v.(type) {
	case []string:
		return append([]string(nil), v...), true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

func contains(options []string, s string) bool {
	for _, o := range options {
		if o == s {
			return true
		}
	}
	return false
}
