package executor

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// NewExecutionID returns an execution ID of the form "x-<12 hex>".
func NewExecutionID() string {
	return prefixedID("x", 12)
}

func prefixedID(prefix string, hexLen int) string {
	b := make([]byte, (hexLen+1)/2)
	if _, err := rand.Read(b); err != nil {
		// Fallback to timestamp-based ID if crypto/rand fails
		return fmt.Sprintf("%s-%x", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%s", prefix, hex.EncodeToString(b)[:hexLen])
}
