package utils

// Helper functions for optional request fields
func FloatPtr(f float64) *float64 {
	return &f
}

func IntPtr(i int) *int {
	return &i
}
