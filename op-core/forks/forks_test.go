package forks

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestForkOrder(t *testing.T) {
	require.Equal(t, Regolith, Next(Bedrock))
	require.Equal(t, Isthmus, Next(Holocene))
	require.Equal(t, None, Next(Latest))
	require.Equal(t, []Name{Holocene, Isthmus}, From(Holocene))
	require.True(t, IsValid(Fjord))
	require.False(t, IsValid("shanghai"))
	require.Panics(t, func() { From("shanghai") })
}
