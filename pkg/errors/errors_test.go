package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromErrorKeepsTypedErrors(t *testing.T) {
	wrapped := fmt.Errorf("loading: %w", Clone(ErrNotFound, "enrollment not found"))
	appErr := FromError(wrapped)
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusNotFound, appErr.Status)
	assert.Equal(t, "enrollment not found", appErr.Message)
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	appErr := FromError(errors.New("boom"))
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
}

func TestClonedSentinelsMatchWithErrorsIs(t *testing.T) {
	err := Clone(ErrContentLocked, "payment pending verification")
	assert.True(t, errors.Is(err, ErrContentLocked))
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestFromValidationCollectsFields(t *testing.T) {
	type payload struct {
		CourseID string `validate:"required"`
		Email    string `validate:"required,email"`
	}
	err := validator.New().Struct(payload{Email: "not-an-email"})
	require.Error(t, err)

	appErr := FromValidation(err, "invalid payload")
	assert.Equal(t, ErrValidation.Code, appErr.Code)
	require.Len(t, appErr.Fields, 2)
	assert.Equal(t, "course_id", appErr.Fields[0].Field)
	assert.Equal(t, "is required", appErr.Fields[0].Message)
	assert.Equal(t, "email", appErr.Fields[1].Field)
	assert.Equal(t, "must be a valid email", appErr.Fields[1].Message)
}
