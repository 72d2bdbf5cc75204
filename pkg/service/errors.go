package service

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	// ErrInvalidInput is returned for requests rejected before touching the store.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConstraint is returned when the store refuses a write because of a
	// key or reference constraint. Nothing from the request was persisted.
	ErrConstraint = errors.New("constraint violation")

	// ErrAuditDisabled is returned by audit reads when no audit store is configured.
	ErrAuditDisabled = errors.New("audit trail disabled")
)

func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// classify tags store errors with ErrConstraint when the store reported a
// constraint failure; other errors pass through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, gorm.ErrForeignKeyViolated) {
		return fmt.Errorf("%w: %w", ErrConstraint, err)
	}
	return err
}

func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

func IsConstraint(err error) bool {
	return errors.Is(err, ErrConstraint)
}
