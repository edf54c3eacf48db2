package domain

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	v, err := ParseAmount("1_500")
	require.NoError(t, err)
	assert.Equal(t, uint64(1_500), v.Uint64())

	v, err = ParseAmount("  ")
	require.NoError(t, err)
	assert.True(t, v.IsZero())

	_, err = ParseAmount("12.5")
	assert.Error(t, err)
	_, err = ParseAmount("abc")
	assert.Error(t, err)
}

func TestParseUnits(t *testing.T) {
	v, err := ParseUnits("12.5", 6)
	require.NoError(t, err)
	assert.Equal(t, uint64(12_500_000), v.Uint64())

	v, err = ParseUnits("3", 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), v.Uint64())

	v, err = ParseUnits("1", 18)
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", v.Dec())

	_, err = ParseUnits("1.0000001", 6)
	assert.Error(t, err, "más decimales de los que admite el activo")
	_, err = ParseUnits("-1", 6)
	assert.Error(t, err)
	_, err = ParseUnits("", 6)
	assert.Error(t, err)
}

func TestFormatUnits(t *testing.T) {
	assert.Equal(t, "12.5", FormatUnits(uint256.NewInt(12_500_000), 6))
	assert.Equal(t, "1500", FormatUnits(uint256.NewInt(1_500), 0))
	assert.Equal(t, "0.000001", FormatUnits(uint256.NewInt(1), 6))
}

func TestFormatBps(t *testing.T) {
	assert.Equal(t, "2.5%", FormatBps(250))
	assert.Equal(t, "1%", FormatBps(100))
	assert.Equal(t, "0%", FormatBps(0))
}
