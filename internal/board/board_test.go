package board

import (
	"fmt"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerate_IsPermutation(t *testing.T) {
	cases := []struct {
		name string
		max  int
	}{
		{"single", 1},
		{"easy", 50},
		{"normal", 100},
		{"extreme", 500},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Generate(tc.max)
			require.Len(t, got, tc.max)

			sorted := slices.Clone(got)
			slices.Sort(sorted)
			for i, n := range sorted {
				require.Equal(t, i+1, n)
			}
		})
	}
}

func TestGenerate_EmptyForNonPositive(t *testing.T) {
	require.Empty(t, Generate(0))
	require.Empty(t, Generate(-3))
}

func TestGenerate_OrdersDiffer(t *testing.T) {
	seen := map[string]bool{}
	for range 20 {
		key := fmt.Sprint(Generate(100))
		require.False(t, seen[key], "two boards came out identical")
		seen[key] = true
	}
}

func TestGenerate_FisherYatesUsesFullRange(t *testing.T) {
	// Always picking the top index leaves the identity order.
	got := generate(5, func(n int) int { return n - 1 })
	require.Equal(t, []int{1, 2, 3, 4, 5}, got)

	// Always picking 0 rotates the first element to the back one swap at a time.
	got = generate(4, func(int) int { return 0 })
	require.Equal(t, []int{2, 3, 4, 1}, got)
}

func TestLookupDifficulty_FallsBackToNormal(t *testing.T) {
	require.Equal(t, 200, LookupDifficulty(DifficultyHard).Max)
	require.Equal(t, 100, LookupDifficulty("nightmare").Max)
	require.Equal(t, ModeClassic, LookupMode("").ID)
}
