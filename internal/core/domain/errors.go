package domain

import (
	"errors"
	"fmt"
)

var (
	ErrJobNotFound          = errors.New("merge job not found")
	ErrInvalidInput         = errors.New("invalid input")
	ErrEncodingUndetermined = errors.New("encoding undetermined")
	ErrDecodeFailure        = errors.New("decode failure")
	ErrEmptyResult          = errors.New("all rows filtered out")
	ErrTemporary            = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
