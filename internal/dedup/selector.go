package dedup

import (
	"strconv"
	"strings"

	"marketbrief/internal/core"
)

// DefaultPriorityFields is used when no priority list is configured.
var DefaultPriorityFields = []string{"content", "summary", "quality_score"}

// Select returns the index of the group member to keep. Each field in
// priority order contributes its character length times a weight that
// decreases with rank; the highest total wins and ties keep the earliest
// member.
func Select(group core.DuplicateGroup, articles []core.Article, priority []string) int {
	best, bestScore := -1, -1
	for _, idx := range group {
		score := 0
		for rank, field := range priority {
			v := fieldString(articles[idx], field)
			if v == "" {
				continue
			}
			score += core.RuneLen(v) * (len(priority) - rank)
		}
		if score > bestScore {
			best, bestScore = idx, score
		}
	}
	return best
}

// fieldString renders an article field as text. Unknown fields are empty.
func fieldString(a core.Article, field string) string {
	switch strings.ToLower(strings.TrimSpace(field)) {
	case "content":
		return a.ContentText()
	case "summary":
		return a.Summary
	case "title":
		return a.Title
	case "link":
		return a.Link
	case "source", "source_name":
		return a.Source
	case "published":
		return a.PublishedRaw
	case "quality_score":
		return formatScore(a.QualityScore)
	default:
		return ""
	}
}

// formatScore prints a score the way it is stored, keeping one decimal for
// whole numbers.
func formatScore(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}
