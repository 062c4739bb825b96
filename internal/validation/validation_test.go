package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type booking struct {
	Email    string `json:"email" validate:"required,email"`
	Duration int    `json:"duration_minutes" validate:"gte=0,lte=1440"`
	Internal string `json:"-" validate:"required"`
	NoTag    string `validate:"required"`
}

func TestStructValid(t *testing.T) {
	assert.NoError(t, Struct(booking{Email: "ana@example.com", Duration: 60, Internal: "x", NoTag: "y"}))
}

func TestStructReportsEveryField(t *testing.T) {
	err := Struct(booking{Email: "not-an-email", Duration: 1441})
	require.Error(t, err)

	var verr *Error
	require.True(t, errors.As(err, &verr))

	byField := map[string]string{}
	for _, f := range verr.Fields {
		byField[f.Field] = f.Tag
	}
	assert.Equal(t, "email", byField["email"])
	assert.Equal(t, "lte", byField["duration_minutes"])
	assert.Equal(t, "required", byField["Internal"])
	assert.Equal(t, "required", byField["NoTag"])
	assert.Contains(t, err.Error(), "email must be a valid email address")
	assert.Contains(t, err.Error(), "duration_minutes must be less than or equal to 1440")
}

func TestStructRejectsNonStruct(t *testing.T) {
	err := Struct(42)
	require.Error(t, err)

	var verr *Error
	assert.False(t, errors.As(err, &verr))
}
