//go:build !mxnet

package mxnet

import (
	"errors"
	"testing"
)

func TestNewWithoutNativeSupport(t *testing.T) {
	if _, err := New(DefaultOptions()); !errors.Is(err, ErrNotCompiled) {
		t.Fatalf("expected ErrNotCompiled, got %v", err)
	}
}
