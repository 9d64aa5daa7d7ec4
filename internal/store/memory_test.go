package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemoryStoreContract(t *testing.T) {
	runContract(t, func(t *testing.T) Store { return NewMemoryStore() })
}

func TestMemoryStoreInTxHonoursCancelledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.InTx(ctx, func(Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
