package dedup

import (
	"marketbrief/internal/core"
)

// Mode selects how candidate pairs are enumerated.
type Mode int

const (
	// Fast compares only texts whose normalized form starts with the same
	// character. Near-duplicates that differ in their first character are
	// never grouped.
	Fast Mode = iota
	// Exhaustive compares every pair.
	Exhaustive
)

func (m Mode) String() string {
	if m == Exhaustive {
		return "exhaustive"
	}
	return "fast"
}

// Pair is a compared couple whose similarity reached the threshold.
type Pair struct {
	I, J       int
	Similarity float64
}

// Group partitions items into near-duplicate groups. Pairs at or above the
// threshold are merged transitively. Items that normalize to an empty string
// are never compared and stay singletons.
func Group(items []string, threshold float64, mode Mode) ([]core.DuplicateGroup, []Pair) {
	normalized := make([]string, len(items))
	for i, item := range items {
		normalized[i] = Normalize(item)
	}

	uf := NewUnionFind(len(items))
	var pairs []Pair
	compare := func(i, j int) {
		sim := normalizedSimilarity(normalized[i], normalized[j])
		if sim >= threshold {
			uf.Union(i, j)
			pairs = append(pairs, Pair{I: i, J: j, Similarity: sim})
		}
	}

	switch mode {
	case Exhaustive:
		for i := range normalized {
			if normalized[i] == "" {
				continue
			}
			for j := i + 1; j < len(normalized); j++ {
				if normalized[j] != "" {
					compare(i, j)
				}
			}
		}
	default:
		for _, bucket := range buckets(normalized) {
			for x := 0; x < len(bucket); x++ {
				for y := x + 1; y < len(bucket); y++ {
					compare(bucket[x], bucket[y])
				}
			}
		}
	}

	raw := uf.Groups()
	groups := make([]core.DuplicateGroup, len(raw))
	for i, g := range raw {
		groups[i] = core.DuplicateGroup(g)
	}
	return groups, pairs
}

// buckets groups non-empty normalized texts by their first character,
// keeping index order inside a bucket and bucket order by first index.
func buckets(normalized []string) [][]int {
	pos := make(map[rune]int)
	var out [][]int
	for i, text := range normalized {
		if text == "" {
			continue
		}
		var first rune
		for _, r := range text {
			first = r
			break
		}
		k, ok := pos[first]
		if !ok {
			k = len(out)
			pos[first] = k
			out = append(out, nil)
		}
		out[k] = append(out[k], i)
	}
	return out
}
