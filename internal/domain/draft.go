package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
)

var ErrInvalidDraft = errors.New("draft must be a JSON object")

// Draft is the admin form state exactly as the form posted it. It is
// kept as a raw JSON object so that in-progress upload refs and string
// typed fields survive the round trip untouched.
type Draft json.RawMessage

// ParseDraft accepts any JSON object. An empty object, an empty list or
// null means there is no draft and yields nil.
func ParseDraft(data []byte) (Draft, error) {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0, string(data) == "null", string(data) == "[]":
		return nil, nil
	case data[0] != '{' || !json.Valid(data):
		return nil, ErrInvalidDraft
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, ErrInvalidDraft
	}
	if len(fields) == 0 {
		return nil, nil
	}

	return Draft(append([]byte(nil), data...)), nil
}

// ID returns the draft's id field. Numeric ids are rendered in decimal;
// anything else yields "".
func (d Draft) ID() string {
	if len(d) == 0 {
		return ""
	}

	var fields struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(d, &fields); err != nil || len(fields.ID) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(fields.ID, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(fields.ID, &n); err == nil {
		if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
			return strconv.FormatInt(i, 10)
		}
	}
	return ""
}

func (d Draft) MarshalJSON() ([]byte, error) {
	if len(d) == 0 {
		return []byte("{}"), nil
	}
	return d, nil
}
