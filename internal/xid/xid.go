package xid

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a prefixed, time-ordered identifier such as "rule-0191...".
func New(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	if strings.TrimSpace(prefix) == "" {
		return id.String()
	}
	return prefix + "-" + id.String()
}
