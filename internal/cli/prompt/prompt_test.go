package prompt

import (
	"errors"
	"fmt"
	"testing"

	"github.com/manifoldco/promptui"
	"github.com/stretchr/testify/assert"
)

func TestIsAborted(t *testing.T) {
	assert.True(t, IsAborted(ErrAborted))
	assert.True(t, IsAborted(promptui.ErrInterrupt))
	assert.True(t, IsAborted(promptui.ErrEOF))
	assert.True(t, IsAborted(fmt.Errorf("reading username: %w", ErrAborted)))

	// A "no" answer to a confirmation is not an abort.
	assert.False(t, IsAborted(promptui.ErrAbort))
	assert.False(t, IsAborted(errors.New("boom")))
	assert.False(t, IsAborted(nil))
}

func TestConfirmWithForce(t *testing.T) {
	ok, err := ConfirmWithForce("Delete user 'alice'?", true)
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestConfirmed(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		want    bool
		wantErr error
	}{
		{"yes", nil, true, nil},
		{"no", promptui.ErrAbort, false, nil},
		{"ctrl-c", promptui.ErrInterrupt, false, ErrAborted},
		{"ctrl-d", promptui.ErrEOF, false, ErrAborted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := confirmed(tt.err)
			assert.Equal(t, tt.want, ok)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	boom := errors.New("boom")
	ok, err := confirmed(boom)
	assert.False(t, ok)
	assert.ErrorIs(t, err, boom)
}
