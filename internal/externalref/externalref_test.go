package externalref

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	ref := New(42, 7, 1001)
	require.Equal(t, "42_7_1001", ref.Token())

	parsed, err := Parse(ref.Token())
	require.NoError(t, err)
	require.Equal(t, ref, parsed)
}

func TestParseMalformed(t *testing.T) {
	_, err := Parse("42_7")
	require.Error(t, err)

	_, err = Parse("42_seven_1001")
	require.Error(t, err)
}
