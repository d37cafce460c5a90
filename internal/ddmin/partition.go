// Package ddmin implements delta debugging: shrinking a failure-inducing input to a
// smaller input that still makes the target fail.
//
// The search has two parts:
//   - Partition splits an input into n contiguous chunks and lists the reductions
//     worth trying at that granularity.
//   - Minimizer probes an Oracle with those reductions at doubling granularities and
//     recurses into the first one that still fails.
//
// The result is a failing input that no candidate of the search can shrink further,
// which in practice is 1-minimal for most targets.
package ddmin

import "bytes"

// DefaultSplit is the initial granularity used when the caller has no preference.
const DefaultSplit = 2

// Candidate is a proposed reduction of an input.
type Candidate struct {
	// Input is the reduced input. It never aliases the input it was derived from.
	Input []byte

	// Split is the granularity to continue with if Input still fails.
	Split int
}

// Partition returns the candidates for input at granularity n.
//
// The input is cut into contiguous chunks of ceil(len(input)/n) bytes; the last
// chunk may be shorter. Every chunk is listed first, alone, in chunk order, with
// next granularity min(2, len(chunk)). Then, in the same order, the complement of
// each of the n chunk indexes (the input with that chunk removed) with next
// granularity n-1.
//
// Rounding the chunk size up can leave fewer than n non-empty chunks (5 bytes at
// n=4 gives chunks of 2, 2 and 1). Missing chunks are empty: they produce no
// single-chunk candidate, and their complement is the whole input, which retries
// it at the coarser granularity n-1. n < 1 or an empty input yields nothing.
func Partition(input []byte, n int) []Candidate {
	if n < 1 || len(input) == 0 {
		return nil
	}

	size := (len(input) + n - 1) / n
	chunks := make([][]byte, 0, n)
	for start := 0; start < len(input); start += size {
		end := min(start+size, len(input))
		chunks = append(chunks, input[start:end])
	}

	candidates := make([]Candidate, 0, len(chunks)+n)
	for _, chunk := range chunks {
		candidates = append(candidates, Candidate{
			Input: bytes.Clone(chunk),
			Split: min(2, len(chunk)),
		})
	}

	for i := 0; i < n; i++ {
		removed := 0
		if i < len(chunks) {
			removed = len(chunks[i])
		}
		complement := make([]byte, 0, len(input)-removed)
		for j, chunk := range chunks {
			if j != i {
				complement = append(complement, chunk...)
			}
		}
		candidates = append(candidates, Candidate{Input: complement, Split: n - 1})
	}

	return candidates
}

// Candidates returns every candidate the Minimizer tries for input at one level
// of the search, in priority order.
//
// The first entry is always the empty input with split 0: a one-shot probe that
// cannot recurse. It is followed by Partition(input, g) for g = split, 2*split,
// 4*split, ... while g <= len(input).
func Candidates(input []byte, split int) []Candidate {
	out := []Candidate{{Input: []byte{}, Split: 0}}
	if split < 1 {
		return out
	}
	for n := split; n <= len(input); n *= 2 {
		out = append(out, Partition(input, n)...)
	}
	return out
}
