package ccfserr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/kestrelfs/ccfs/ccfserr"
	"github.com/stretchr/testify/assert"
)

func TestErrorWithMessage(t *testing.T) {
	err := ccfserr.ErrNotFound.WithMessage("cluster %d", 5)
	assert.Equal(t, "no such file or directory: cluster 5", err.Error())
	assert.ErrorIs(t, err, ccfserr.ErrNotFound)
}

func TestErrorIsIgnoresMessage(t *testing.T) {
	a := ccfserr.ErrIO.WithMessage("reading boot sector")
	b := ccfserr.ErrIO.WithMessage("writing fs-info sector")
	assert.ErrorIs(t, a, ccfserr.ErrIO)
	assert.ErrorIs(t, b, ccfserr.ErrIO)
	assert.False(t, errors.Is(a, ccfserr.ErrNotFound))
}

func TestErrorWrapping(t *testing.T) {
	wrapped := fmt.Errorf("allocate cluster: %w", ccfserr.ErrNoSpace)
	assert.ErrorIs(t, wrapped, ccfserr.ErrNoSpace)
}
