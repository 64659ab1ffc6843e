package validation

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/xeipuuv/gojsonschema"
)

// ProviderResponseSchema defines the JSON schema for recommender provider
// responses. Identifiers may be strings or non-negative integers.
var ProviderResponseSchema = `{
	"type": "object",
	"properties": {
		"message": {"type": "string"},
		"recommendations": {
			"type": "array",
			"items": {
				"anyOf": [
					{"type": "string", "minLength": 1},
					{"type": "integer", "minimum": 0}
				]
			}
		}
	},
	"required": ["recommendations"]
}`

var providerSchema = gojsonschema.NewStringLoader(ProviderResponseSchema)

// ExternalID is a catalog identifier that may be encoded as a JSON string or number.
type ExternalID string

func (id *ExternalID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ExternalID(strings.TrimSpace(s))
		return nil
	}

	if n, err := strconv.ParseInt(string(data), 10, 64); err == nil && n >= 0 {
		*id = ExternalID(strconv.FormatInt(n, 10))
		return nil
	}

	// Whole numbers written with a fraction or exponent, such as 27205.0,
	// are valid schema integers.
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil || f < 0 || f > maxExactFloatInt || f != math.Trunc(f) {
		return fmt.Errorf("identifier %s is neither a string nor an integer", data)
	}
	*id = ExternalID(strconv.FormatInt(int64(f), 10))
	return nil
}

// maxExactFloatInt is the largest integer a float64 holds exactly.
const maxExactFloatInt = 1 << 53

// ProviderResponse is the payload returned by a recommender provider.
type ProviderResponse struct {
	Message         string       `json:"message,omitempty"`
	Recommendations []ExternalID `json:"recommendations"`
}

// IDs returns the recommendations as plain strings, order preserved.
func (r *ProviderResponse) IDs() []string {
	ids := make([]string, len(r.Recommendations))
	for i, id := range r.Recommendations {
		ids[i] = string(id)
	}
	return ids
}

// ValidateProviderResponse validates a JSON response against the provider schema
func ValidateProviderResponse(jsonData []byte) error {
	documentLoader := gojsonschema.NewBytesLoader(jsonData)

	result, err := gojsonschema.Validate(providerSchema, documentLoader)
	if err != nil {
		return fmt.Errorf("failed to validate JSON schema: %w", err)
	}

	if !result.Valid() {
		var errorMessages []string
		for _, desc := range result.Errors() {
			errorMessages = append(errorMessages, desc.String())
		}
		return fmt.Errorf("JSON validation failed: %s", strings.Join(errorMessages, "; "))
	}

	return nil
}

// ValidateAndParseProviderResponse validates and parses a provider response
func ValidateAndParseProviderResponse(jsonData []byte) (*ProviderResponse, error) {
	if err := ValidateProviderResponse(jsonData); err != nil {
		return nil, err
	}

	var response ProviderResponse
	if err := json.Unmarshal(jsonData, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	return &response, nil
}
