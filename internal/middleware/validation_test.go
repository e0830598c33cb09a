package middleware

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testListing struct {
	ID    string `json:"id" validate:"required"`
	Stars int    `json:"stars" validate:"omitempty,min=3,max=5"`
	Stock string `json:"stock" validate:"omitempty,oneof=Ready Low"`
	Image string `json:"image" validate:"mediaref"`
}

func decode(t *testing.T, body map[string]interface{}) error {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest("POST", "/test", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")

	var listing testListing
	return DecodeAndValidate(req, &listing)
}

func TestProperty_RequiredFieldValidationWorks(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("a missing id is rejected", prop.ForAll(
		func(includeID bool, stars int) bool {
			body := map[string]interface{}{"stars": stars}
			if includeID {
				body["id"] = "DS-101"
			}

			err := decode(t, body)
			if includeID {
				return err == nil
			}
			return err != nil
		},
		gen.Bool(),
		gen.IntRange(3, 5),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestProperty_StarRangeValidation(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("stars outside 3-5 are rejected, zero means unset", prop.ForAll(
		func(stars int) bool {
			err := decode(t, map[string]interface{}{"id": "DS-101", "stars": stars})
			if stars == 0 || (stars >= 3 && stars <= 5) {
				return err == nil
			}
			return err != nil
		},
		gen.IntRange(-10, 10),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestValidation_ErrorsUseJSONFieldNames(t *testing.T) {
	err := decode(t, map[string]interface{}{"stars": 9, "stock": "Gone"})
	require.Error(t, err)

	got := map[string]string{}
	for _, ve := range FormatValidationErrors(err) {
		got[ve.Field] = ve.Message
	}

	assert.Equal(t, "This field is required", got["id"])
	assert.Equal(t, "Value must be at most 5", got["stars"])
	assert.Equal(t, "Value must be one of: Ready Low", got["stock"])
}

func TestValidation_MediaRef(t *testing.T) {
	tests := []struct {
		path  string
		valid bool
	}{
		{"", true},
		{"images/DS-101_main.png", true},
		{"images/buffer/temp_1_abcdef.png", true},
		{"images/../../etc/passwd", false},
		{"../secrets.json", false},
		{"/etc/passwd", false},
		{`images\DS-101_main.png`, false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			err := decode(t, map[string]interface{}{"id": "DS-101", "image": tt.path})
			if tt.valid {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Equal(t, "image", FormatValidationErrors(err)[0].Field)
			}
		})
	}
}

func TestDecodeAndValidate_MalformedJSON(t *testing.T) {
	req := httptest.NewRequest("POST", "/test", bytes.NewReader([]byte("{")))
	var listing testListing
	err := DecodeAndValidate(req, &listing)
	require.Error(t, err)
	assert.Empty(t, FormatValidationErrors(err))
}
