package xid

import (
	"fmt"

	"github.com/google/uuid"
)

// New returns "<prefix>-<uuid>", using a time-ordered v7 uuid when possible.
func New(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return fmt.Sprintf("%s-%s", prefix, id.String())
}
