package util

import "github.com/google/uuid"

// NewID returns prefix_<uuid>.
func NewID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}
