package errs

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIs_MatchesWrappedKind(t *testing.T) {
	err := InvariantErrorf("flash.prep", "soc mismatch")
	assert.True(t, Is(err, Invariant))
	assert.False(t, Is(err, Transport))

	wrapped := fmt.Errorf("stage1: %w", err)
	assert.True(t, Is(wrapped, Invariant))
}

func TestIs_NonTaxonomyError(t *testing.T) {
	assert.False(t, Is(fmt.Errorf("plain error"), Transport))
	assert.False(t, Is(nil, Transport))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "transport", Transport.String())
	assert.Equal(t, "protocol", Protocol.String())
	assert.Equal(t, "invariant", Invariant.String())
	assert.Equal(t, "resource", Resource.String())
}
