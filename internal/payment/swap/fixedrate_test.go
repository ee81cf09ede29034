package swap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFixedRateEngine(t *testing.T) {
	engine := NewFixedRateEngine(3_000, 100)

	t.Run("deducts fee before converting", func(t *testing.T) {
		result, err := engine.Swap(100_000_000)
		assert.NoError(t, err)
		assert.Equal(t, int64(100_000_000), result.InputAmount)
		assert.Equal(t, int64(300_000), result.FeeAmount)
		assert.Equal(t, int64(99_700_000*100), result.OutputAmount)
	})

	t.Run("is deterministic", func(t *testing.T) {
		a, _ := engine.Swap(12_345_678)
		b, _ := engine.Swap(12_345_678)
		assert.Equal(t, a, b)
	})

	t.Run("rejects non-positive input", func(t *testing.T) {
		_, err := engine.Swap(0)
		assert.ErrorIs(t, err, ErrInvalidInput)
		_, err = engine.Swap(-1)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("zero fee passes everything through", func(t *testing.T) {
		free := NewFixedRateEngine(0, 2)
		result, err := free.Swap(500)
		assert.NoError(t, err)
		assert.Equal(t, int64(0), result.FeeAmount)
		assert.Equal(t, int64(1_000), result.OutputAmount)
	})
}
