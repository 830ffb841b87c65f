package utils

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenMessageID returns a time-derived message identifier, unique within a
// single sender and monotonically increasing in practice.
func GenMessageID() string {
	return fmt.Sprintf("msg-%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

// GenContactID returns a new contact identifier. Contact ids are assigned
// once and never reused.
func GenContactID() string {
	return fmt.Sprintf("user-%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}
