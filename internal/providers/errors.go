package providers

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
)

var (
	ErrAuth            = errors.New("provider authentication failed")
	ErrNetwork         = errors.New("provider unreachable")
	ErrSearch          = errors.New("provider rejected search")
	ErrDataFormat      = errors.New("unexpected provider response format")
	ErrInvalidCriteria = errors.New("invalid search criteria")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// StatusError carries a non-2xx provider response.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Body)
}

func networkError(err error, op string) error {
	return errors.Mark(errors.Wrap(err, op), ErrNetwork)
}

func formatError(err error, op string) error {
	return errors.Mark(errors.Wrap(err, op), ErrDataFormat)
}
