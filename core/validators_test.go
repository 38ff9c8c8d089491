package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name    string `json:"name" validate:"required"`
	Minutes int    `json:"minutes" validate:"gt=0"`
	Skipped string `json:"-"`
}

func TestValidateStruct(t *testing.T) {
	assert.NoError(t, ValidateStruct(sample{Name: "x", Minutes: 1}))

	err := ValidateStruct(sample{})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))

	vErr := err.(*ValidationError)
	assert.Equal(t, errInvalidInput, vErr.Err)
	assert.Equal(t, []FieldError{
		{Field: "name", Error: requiredText},
		{Field: "minutes", Error: "minutes must be greater than 0"},
	}, vErr.Fields)
}

func TestValidationError(t *testing.T) {
	err := ValidationError{Fields: []FieldError{{Field: "window", Error: "end must be after start"}}}
	assert.Equal(t, "window: end must be after start", err.Error())
	assert.Equal(t, "", ValidationError{}.Error())
	assert.False(t, IsValidationError(NewShutdownError("bye")))
	assert.True(t, IsShutdown(NewShutdownError("bye")))
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, "Mixed Case", CleanString("  Mixed Case \n"))
	assert.Equal(t, "mixed case", CleanString("  Mixed Case \n", true))
	assert.Equal(t, 68.97, Round2(68.965517))
	assert.Equal(t, "scheduled_at DESC, id ASC", OrderBy(
		DBOrdering{Field: "scheduled_at"},
		DBOrdering{Field: "id", Ascending: true},
	))
}
