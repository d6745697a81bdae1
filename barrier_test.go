package smrproxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoopBarrier(t *testing.T) {
	var b Barrier = noopBarrier{}
	assert.False(t, b.Available())
	assert.NoError(t, b.Register())
	assert.NoError(t, b.Sync())
}

func TestHostBarrier(t *testing.T) {
	b := NewBarrier()
	if !b.Available() {
		t.Skip("host membarrier facility not available")
	}
	assert.NoError(t, b.Register())
	assert.NoError(t, b.Sync())
}
