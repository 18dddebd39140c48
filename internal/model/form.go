package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// FieldType is the closed set of registration field kinds.
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldEmail    FieldType = "email"
	FieldPhone    FieldType = "phone"
	FieldNumber   FieldType = "number"
	FieldDate     FieldType = "date"
	FieldTextarea FieldType = "textarea"
	FieldDropdown FieldType = "dropdown"
	FieldRadio    FieldType = "radio"
	FieldCheckbox FieldType = "checkbox"
)

// FieldTypes lists every kind in declaration order.
var FieldTypes = []FieldType{
	FieldText, FieldEmail, FieldPhone, FieldNumber, FieldDate,
	FieldTextarea, FieldDropdown, FieldRadio, FieldCheckbox,
}

// Valid reports whether t is one of the known kinds.
func (t FieldType) Valid() bool {
	for _, k := range FieldTypes {
		if k == t {
			return true
		}
	}
	return false
}

// HasOptions reports whether the kind draws its value from an option set.
func (t FieldType) HasOptions() bool {
	return t == FieldDropdown || t == FieldRadio || t == FieldCheckbox
}

// FieldDefinition describes a single field in an event's registration form.
type FieldDefinition struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Type      FieldType `json:"type"`
	Required  bool      `json:"required"`
	MinLength *int      `json:"min_length,omitempty"`
	MaxLength *int      `json:"max_length,omitempty"`
	Pattern   string    `json:"pattern,omitempty"`
	Options   []string  `json:"options,omitempty"`
}

// FormSchema is one immutable version of an event's registration form.
type FormSchema struct {
	ID        string            `json:"id"`
	EventID   string            `json:"event_id"`
	Version   int               `json:"version"`
	Fields    []FieldDefinition `json:"fields"`
	CreatedAt time.Time         `json:"created_at"`
}

// Clone returns a copy that shares no memory with fs.
func (fs *FormSchema) Clone() *FormSchema {
	c := *fs
	c.Fields = make([]FieldDefinition, len(fs.Fields))
	for i, f := range fs.Fields {
		f.Options = append([]string(nil), f.Options...)
		f.MinLength = cloneInt(f.MinLength)
		f.MaxLength = cloneInt(f.MaxLength)
		c.Fields[i] = f
	}
	return &c
}

func cloneInt(n *int) *int {
	if n == nil {
		return nil
	}
	v := *n
	return &v
}

// FieldValue is a validated submitted value. The concrete types are
// TextValue, OptionValue and MultiOptionValue.
type FieldValue interface {
	fieldValue()
}

// TextValue holds free text for text, email, phone, number, date and textarea fields.
type TextValue string

// OptionValue holds the single chosen option of a dropdown or radio field.
type OptionValue string

// MultiOptionValue holds the chosen options of a checkbox field.
type MultiOptionValue []string

func (TextValue) fieldValue()        {}
func (OptionValue) fieldValue()      {}
func (MultiOptionValue) fieldValue() {}

// FormData maps normalized field keys to validated values.
type FormData map[string]FieldValue

// Keys returns the field keys in sorted order.
func (d FormData) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MarshalJSON renders values as plain strings or string arrays.
func (d FormData) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d))
	for k, v := range d {
		switch v := v.(type) {
		case TextValue:
			out[k] = string(v)
		case OptionValue:
			out[k] = string(v)
		case MultiOptionValue:
			out[k] = []string(v)
		default:
			return nil, fmt.Errorf("form_data %q: unsupported value %T", k, v)
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the MarshalJSON form back. Strings decode as TextValue
// and arrays as MultiOptionValue; telling an option from free text needs
// the schema.
func (d *FormData) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(FormData, len(raw))
	for k, v := range raw {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			out[k] = TextValue(s)
			continue
		}
		var list []string
		if err := json.Unmarshal(v, &list); err != nil {
			return fmt.Errorf("form_data %q: want string or string array", k)
		}
		out[k] = MultiOptionValue(list)
	}
	*d = out
	return nil
}
