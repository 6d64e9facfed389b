package kverrors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestKeyNotFoundMessage(t *testing.T) {
	err := NewKeyNotFound()
	if err.Error() != "Key not found" {
		t.Errorf("expected 'Key not found', got %q", err.Error())
	}
}

func TestErrorsIsMatchesByKind(t *testing.T) {
	err := NewKeyNotFound()
	if !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("expected errors.Is to match on Kind")
	}
	if errors.Is(err, ErrUnexpected) {
		t.Errorf("expected errors.Is not to match a different Kind")
	}
}

func TestUnwrapReturnsCause(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := NewIo(cause)
	if !errors.Is(err, cause) {
		t.Errorf("expected errors.Is to unwrap to the underlying cause")
	}
}

func TestCodecErrorMessageIncludesCause(t *testing.T) {
	err := NewCodec(fmt.Errorf("unexpected token"))
	if err.Error() == "" {
		t.Errorf("expected a non-empty message")
	}
	if !strings.Contains(err.Error(), "unexpected token") {
		t.Errorf("expected the message to include the cause, got %q", err.Error())
	}
}
