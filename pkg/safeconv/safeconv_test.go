package safeconv_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sumatoshi-tech/fuzzdash/pkg/safeconv"
)

func TestMustIntToUint32(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uint32(42), safeconv.MustIntToUint32(42))
	assert.Panics(t, func() { safeconv.MustIntToUint32(-1) })
}

func TestMustUint32ToInt(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 42, safeconv.MustUint32ToInt(42))
	assert.Equal(t, int(safeconv.MaxUint32), safeconv.MustUint32ToInt(safeconv.MaxUint32))
}

func TestMustInt64ToInt(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 42, safeconv.MustInt64ToInt(42))
	assert.Equal(t, -42, safeconv.MustInt64ToInt(-42))
}
