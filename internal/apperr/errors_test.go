package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"validation", ValidationError{Field: "class", Msg: "required"}, CodeValidation},
		{"not found", NotFoundError{Resource: "service", ID: "42"}, CodeNotFound},
		{"conflict", ConflictError{Resource: "seat", Msg: "A1 already booked"}, CodeConflict},
		{"internal", InternalError{Msg: "boom"}, CodeInternal},
		{"wrapped conflict", fmt.Errorf("create: %w", ConflictError{Msg: "full"}), CodeConflict},
		{"plain", errors.New("plain"), CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Code(tt.err))
		})
	}
}

func TestMessages(t *testing.T) {
	assert.Equal(t, "class: required", ValidationError{Field: "class", Msg: "required"}.Error())
	assert.Equal(t, "service 42 not found", NotFoundError{Resource: "service", ID: "42"}.Error())
	assert.Equal(t, "seat conflict: A1 already booked", ConflictError{Resource: "seat", Msg: "A1 already booked"}.Error())
	assert.Equal(t, "commit: boom", InternalError{Msg: "commit", Err: errors.New("boom")}.Error())
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("no rows")
	err := NotFoundError{Resource: "booking", Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsNotFound(fmt.Errorf("outer: %w", err)))
	assert.False(t, IsConflict(err))
}
