package attack

import (
	"errors"
	"fmt"
	"sort"
)

// ErrNoWeightedTaskSets is returned when no task set can receive users.
var ErrNoWeightedTaskSets = errors.New("no task set has a positive weight")

// Distribute splits users across task sets in proportion to weights using
// the largest-remainder method. Remainder ties go to the earlier set. When
// there are fewer users than weighted sets, the earliest weighted sets get
// one user each. Sets with weight zero never receive users.
func Distribute(users int, weights []int) ([]int, error) {
	if users < 0 {
		return nil, fmt.Errorf("user count must be non-negative, got %d", users)
	}

	counts := make([]int, len(weights))
	var eligible []int
	total := 0
	for i, w := range weights {
		if w < 0 {
			return nil, fmt.Errorf("task set weight must be non-negative, got %d", w)
		}
		if w > 0 {
			eligible = append(eligible, i)
			total += w
		}
	}
	if len(eligible) == 0 {
		return nil, ErrNoWeightedTaskSets
	}

	if users < len(eligible) {
		for _, i := range eligible[:users] {
			counts[i] = 1
		}
		return counts, nil
	}

	remainders := make([]int, len(weights))
	assigned := 0
	for _, i := range eligible {
		share := users * weights[i]
		counts[i] = share / total
		remainders[i] = share % total
		assigned += counts[i]
	}

	order := make([]int, len(eligible))
	copy(order, eligible)
	sort.SliceStable(order, func(a, b int) bool {
		return remainders[order[a]] > remainders[order[b]]
	})
	for _, i := range order[:users-assigned] {
		counts[i]++
	}
	return counts, nil
}

// SpawnOrder interleaves set indexes so that every prefix of the order
// approximates the final proportions (smooth weighted round-robin). Index
// i appears exactly counts[i] times. Ties go to the earlier set.
func SpawnOrder(counts []int) []int {
	total := 0
	for _, c := range counts {
		total += c
	}

	remaining := make([]int, len(counts))
	copy(remaining, counts)
	current := make([]int, len(counts))
	order := make([]int, 0, total)

	for len(order) < total {
		best := -1
		for i, c := range counts {
			if remaining[i] == 0 {
				continue
			}
			current[i] += c
			if best < 0 || current[i] > current[best] {
				best = i
			}
		}
		current[best] -= total
		remaining[best]--
		order = append(order, best)
	}
	return order
}
