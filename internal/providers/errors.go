package providers

import (
	"encoding/json"
	"fmt"
)

// APIError is a non-2xx vendor response. Its message is the vendor's own
// error text when one could be parsed.
type APIError struct {
	Vendor     string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// newAPIError builds an APIError from a vendor error body, falling back to
// "<Vendor> API error" when the body carries no readable message.
func newAPIError(vendor string, status int, body []byte) *APIError {
	return &APIError{
		Vendor:     vendor,
		StatusCode: status,
		Message:    vendorErrorMessage(body, fmt.Sprintf("%s API error", vendor)),
	}
}

// vendorErrorMessage understands the shapes the supported vendors use:
// {"error":{"message":"..."}}, {"error":"..."} and {"message":"..."}.
func vendorErrorMessage(body []byte, fallback string) string {
	var envelope struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fallback
	}

	if len(envelope.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(envelope.Error, &nested); err == nil && nested.Message != "" {
			return nested.Message
		}

		var flat string
		if err := json.Unmarshal(envelope.Error, &flat); err == nil && flat != "" {
			return flat
		}
	}

	if envelope.Message != "" {
		return envelope.Message
	}

	return fallback
}
