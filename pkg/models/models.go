// Package models holds the typed records exchanged with the gateway. Every record
// is validated at the boundary so callers never see partially shaped rows.
package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrInvalidRecord is wrapped by every Validate failure
	ErrInvalidRecord = errors.New("invalid record")

	// ErrInvalidTransition is returned for a status change the state machine forbids
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Record is implemented by every gateway row type
type Record interface {
	Key() string
	Validate() error
}

func invalid(kind, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidRecord, kind, reason)
}

// IsUUID reports whether s is a canonical row identifier
func IsUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil && len(s) == 36
}

func requireID(kind, id string) error {
	if strings.TrimSpace(id) == "" {
		return invalid(kind, "missing id")
	}
	return nil
}
