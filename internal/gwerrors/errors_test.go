package gwerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(Unavailable))
	assert.True(t, IsTransient(Throttled))
	assert.False(t, IsTransient(Invalid))
	assert.False(t, IsTransient(errors.New("some other failure")))
}

func TestWrap_PreservesSentinelForErrorsIs(t *testing.T) {
	err := Wrap(Unavailable, "collection %q probe failed", "appointments")
	assert.ErrorIs(t, err, Unavailable)
	assert.Contains(t, err.Error(), "appointments")
}
