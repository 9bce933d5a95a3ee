package board

import "math/rand/v2"

// Generate returns every integer in 1..max exactly once in uniformly random order.
func Generate(max int) []int {
	return generate(max, rand.IntN)
}

// generate runs a Fisher-Yates shuffle; intN must return a value in [0, n).
func generate(max int, intN func(n int) int) []int {
	if max <= 0 {
		return []int{}
	}
	numbers := make([]int, max)
	for i := range numbers {
		numbers[i] = i + 1
	}
	for i := len(numbers) - 1; i > 0; i-- {
		j := intN(i + 1)
		numbers[i], numbers[j] = numbers[j], numbers[i]
	}
	return numbers
}
