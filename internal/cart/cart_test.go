package cart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdd_MergesSameProductAndSize(t *testing.T) {
	s := State{SessionID: "sess-1"}

	require.NoError(t, s.Add(Item{ProductID: 1, PriceMinor: 2000, Quantity: 1, Size: "M"}))
	require.NoError(t, s.Add(Item{ProductID: 1, PriceMinor: 2000, Quantity: 2, Size: "M"}))

	require.Len(t, s.Items, 1)
	assert.Equal(t, 3, s.Items[0].Quantity)
	assert.Equal(t, 3, s.TotalItems())
}

func TestAdd_DifferentSizeIsNewLine(t *testing.T) {
	s := State{}

	require.NoError(t, s.Add(Item{ProductID: 1, Quantity: 1, Size: "M"}))
	require.NoError(t, s.Add(Item{ProductID: 1, Quantity: 1, Size: "L"}))

	assert.Len(t, s.Items, 2)
}

func TestAdd_RejectsZeroQuantity(t *testing.T) {
	s := State{}
	assert.Error(t, s.Add(Item{ProductID: 1, Quantity: 0}))
}

func TestDerivedTotals(t *testing.T) {
	s := State{}
	require.NoError(t, s.Add(Item{ProductID: 1, PriceMinor: 2000, Quantity: 2}))
	require.NoError(t, s.Add(Item{ProductID: 2, PriceMinor: 550, Quantity: 1, Size: "S"}))

	assert.Equal(t, int64(4550), s.Subtotal())
	assert.Equal(t, 3, s.TotalItems())
}

func TestSetQuantity(t *testing.T) {
	s := State{}
	require.NoError(t, s.Add(Item{ProductID: 1, PriceMinor: 100, Quantity: 2, Size: "M"}))

	require.NoError(t, s.SetQuantity(1, "M", 5))
	assert.Equal(t, 5, s.Items[0].Quantity)

	require.NoError(t, s.SetQuantity(1, "M", 0))
	assert.Empty(t, s.Items)

	assert.Error(t, s.SetQuantity(99, "", 1))
}

func TestNewOrderNumberFormat(t *testing.T) {
	n := NewOrderNumber()
	assert.Regexp(t, `^INF\d{13}$`, n)
}
