package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidation(t *testing.T) {
	err := NewValidationError("bad input %d", 42)
	assert.True(t, IsValidation(err))
	assert.True(t, IsValidation(fmt.Errorf("wrapping: %w", err)))
	assert.False(t, IsValidation(errors.New("plain")))
	assert.Equal(t, "bad input 42", err.Error())
}

func TestAsUpstream(t *testing.T) {
	ue := &UpstreamError{Operation: "completion", Status: 503, Body: `{"error":"down"}`}
	wrapped := fmt.Errorf("completion call: %w", ue)

	got, ok := AsUpstream(wrapped)
	require.True(t, ok)
	assert.Equal(t, 503, got.Status)

	_, ok = AsUpstream(errors.New("plain"))
	assert.False(t, ok)
}

func TestNegotiationErrorUnwrapsToLastVariant(t *testing.T) {
	last := &UpstreamError{Operation: "POST /scores (enveloped_snake)", Status: 422, Body: "nope"}
	err := &NegotiationError{Variants: 4, Last: last}

	got, ok := AsUpstream(err)
	require.True(t, ok)
	assert.Equal(t, last, got)
	assert.Contains(t, err.Error(), "all 4 payload variants rejected")
}
