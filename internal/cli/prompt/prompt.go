// Package prompt wraps promptui for the interactive parts of the CLI.
package prompt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/manifoldco/promptui"
)

// ErrAborted is returned when the user leaves a prompt with Ctrl+C or Ctrl+D.
var ErrAborted = errors.New("aborted")

// ErrPasswordMismatch is returned when the confirmation differs.
var ErrPasswordMismatch = errors.New("passwords do not match")

// IsAborted reports whether err came from the user leaving a prompt.
func IsAborted(err error) bool {
	return errors.Is(err, ErrAborted) ||
		errors.Is(err, promptui.ErrInterrupt) ||
		errors.Is(err, promptui.ErrEOF)
}

func run(p promptui.Prompt) (string, error) {
	out, err := p.Run()
	if IsAborted(err) {
		return "", ErrAborted
	}
	return out, err
}

// Text asks for a non-empty value. Surrounding whitespace is trimmed.
func Text(label string) (string, error) {
	out, err := run(promptui.Prompt{
		Label: label,
		Validate: func(s string) error {
			if strings.TrimSpace(s) == "" {
				return fmt.Errorf("%s is required", strings.ToLower(label))
			}
			return nil
		},
	})
	return strings.TrimSpace(out), err
}

// Secret asks for a masked value and returns it untrimmed.
func Secret(label string) (string, error) {
	return run(promptui.Prompt{Label: label, Mask: '*'})
}

// NewPassword asks for a password twice. validate, when set, is applied to
// the first entry as the user types.
func NewPassword(validate func(string) error) (string, error) {
	pw, err := run(promptui.Prompt{Label: "Password", Mask: '*', Validate: validate})
	if err != nil {
		return "", err
	}
	confirm, err := Secret("Confirm password")
	if err != nil {
		return "", err
	}
	if pw != confirm {
		return "", ErrPasswordMismatch
	}
	return pw, nil
}

// Confirm asks a yes/no question that defaults to no.
func Confirm(label string) (bool, error) {
	p := promptui.Prompt{Label: label, IsConfirm: true}
	_, err := p.Run()
	return confirmed(err)
}

// confirmed maps the outcome of a confirmation prompt: promptui reports a
// "no" as ErrAbort.
func confirmed(err error) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, promptui.ErrAbort):
		return false, nil
	case IsAborted(err):
		return false, ErrAborted
	default:
		return false, err
	}
}

// ConfirmWithForce skips the question when force is set.
func ConfirmWithForce(label string, force bool) (bool, error) {
	if force {
		return true, nil
	}
	return Confirm(label)
}
