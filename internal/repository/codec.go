package repository

import (
	"encoding/json"
	"fmt"

	"github.com/Shivanand-hulikatti/event-registration/internal/model"
)

// Stored form data keeps each value's variant so it decodes back to the
// same concrete type.
const (
	kindText    = "text"
	kindOption  = "option"
	kindOptions = "options"
)

type storedValue struct {
	Kind  string          `json:"kind"`
	Value json.RawMessage `json:"value"`
}

func encodeFormData(data model.FormData) ([]byte, error) {
	out := make(map[string]storedValue, len(data))
	for k, v := range data {
		var (
			kind string
			raw  []byte
			err  error
		)
		switch v := v.(type) {
		case model.TextValue:
			kind = kindText
			raw, err = json.Marshal(string(v))
		case model.OptionValue:
			kind = kindOption
			raw, err = json.Marshal(string(v))
		case model.MultiOptionValue:
			kind = kindOptions
			raw, err = json.Marshal([]string(v))
		default:
			return nil, fmt.Errorf("encode form_data %q: unsupported value %T", k, v)
		}
		if err != nil {
			return nil, fmt.Errorf("encode form_data %q: %w", k, err)
		}
		out[k] = storedValue{Kind: kind, Value: raw}
	}
	return json.Marshal(out)
}

func decodeFormData(b []byte) (model.FormData, error) {
	if len(b) == 0 {
		return model.FormData{}, nil
	}
	var in map[string]storedValue
	if err := json.Unmarshal(b, &in); err != nil {
		return nil, fmt.Errorf("decode form_data: %w", err)
	}
	data := make(model.FormData, len(in))
	for k, sv := range in {
		switch sv.Kind {
		case kindText, kindOption:
			var s string
			if err := json.Unmarshal(sv.Value, &s); err != nil {
				return nil, fmt.Errorf("decode form_data %q: %w", k, err)
			}
			if sv.Kind == kindText {
				data[k] = model.TextValue(s)
			} else {
				data[k] = model.OptionValue(s)
			}
		case kindOptions:
			var items []string
			if err := json.Unmarshal(sv.Value, &items); err != nil {
				return nil, fmt.Errorf("decode form_data %q: %w", k, err)
			}
			data[k] = model.MultiOptionValue(items)
		default:
			return nil, fmt.Errorf("decode form_data %q: unknown kind %q", k, sv.Kind)
		}
	}
	return data, nil
}
