package bitvote

// Result is the outcome of a bit-vote resolution.
type Result struct {
	Mask Bitmask
	// SubsetSize is the size of the agreeing subset the mask was taken
	// from, or 0 when no consensus was reached.
	SubsetSize int
}

// Reduced reports whether consensus was only reached below the requested
// subset size.
func (r Result) Reduced(subsetSize int) bool {
	return r.SubsetSize > 0 && r.SubsetSize < subsetSize
}

// MinVoters returns the number of agreeing voters required for a default
// set of the given size: ceil(size/2).
func MinVoters(defaultSetSize int) int {
	return (defaultSetSize + 1) / 2
}

// Resolve finds the best bitmask that a subset of voters agrees on.
//
// Subset sizes are tried from subsetSize down to MinVoters(defaultSetSize).
// For each size every combination of votes is intersected and the
// intersection with the most set bits wins, ties going to the greater hex
// string. The first size that yields a non-zero winner decides. Fewer than
// MinVoters non-zero votes never produce a result.
func Resolve(votes []Bitmask, subsetSize, defaultSetSize int) Result {
	minVoters := MinVoters(defaultSetSize)

	nonZero := 0
	for _, v := range votes {
		if !v.IsZero() {
			nonZero++
		}
	}
	if nonZero < minVoters {
		return Result{Mask: Bitmask{}}
	}

	for s := subsetSize; s >= minVoters && s > 0; s-- {
		best := bestIntersection(votes, s)
		if best != nil && !best.IsZero() {
			return Result{Mask: append(Bitmask{}, best...), SubsetSize: s}
		}
	}
	return Result{Mask: Bitmask{}}
}

// bestIntersection returns the best AND over all size-k combinations of
// votes, or nil if there are fewer than k votes.
func bestIntersection(votes []Bitmask, k int) Bitmask {
	var (
		best     Bitmask
		bestOnes = -1
	)
	forEachCombination(len(votes), k, func(idx []int) {
		cand := votes[idx[0]]
		for _, i := range idx[1:] {
			cand = And(cand, votes[i])
		}
		ones := cand.Ones()
		if ones > bestOnes || (ones == bestOnes && cand.Compare(best) > 0) {
			best, bestOnes = cand, ones
		}
	})
	return best
}

// forEachCombination calls fn with every k-element index combination of
// [0, n) in lexicographic order. The slice passed to fn is reused.
func forEachCombination(n, k int, fn func([]int)) {
	if k <= 0 || k > n {
		return
	}
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}
	for {
		fn(idx)

		// Find the rightmost index that can still move forward.
		i := k - 1
		for i >= 0 && idx[i] == n-k+i {
			i--
		}
		if i < 0 {
			return
		}
		idx[i]++
		for j := i + 1; j < k; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
}
