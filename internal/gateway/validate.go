package gateway

import "strings"

// ValidationError is a request that cannot be dispatched.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func missingFields(fields []string) *ValidationError {
	return &ValidationError{Message: "Missing required fields: " + strings.Join(fields, ", ")}
}

// ValidateExecute checks an execute request before any provider lookup.
func ValidateExecute(providerID string, in ExecuteInput) error {
	var missing []string
	if strings.TrimSpace(providerID) == "" {
		missing = append(missing, "providerId")
	}
	if strings.TrimSpace(in.Prompt) == "" {
		missing = append(missing, "prompt")
	}
	if len(missing) > 0 {
		return missingFields(missing)
	}
	return nil
}

// ValidateTestConnection checks a test-connection request.
func ValidateTestConnection(providerID string) error {
	if strings.TrimSpace(providerID) == "" {
		return missingFields([]string{"providerId"})
	}
	return nil
}
