package skills

import (
	"sort"
	"strings"
)

// Mention is one skill's share of a posting sample.
type Mention struct {
	Skill     string
	Count     int
	Frequency float64 // share of postings mentioning the skill, 0..1
}

// CountMentions scans posting texts for the given vocabulary and returns
// per-skill frequencies, highest first. Each posting counts a skill at
// most once regardless of repetition.
func CountMentions(postings []string, vocabulary []string) []Mention {
	if len(postings) == 0 || len(vocabulary) == 0 {
		return nil
	}

	// Canonical skill -> search terms (canonical name plus its aliases).
	terms := make(map[string][]string, len(vocabulary))
	for _, v := range vocabulary {
		canonical := Normalize(v)
		if canonical == "" {
			continue
		}
		if _, seen := terms[canonical]; seen {
			continue
		}
		variants := []string{canonical}
		for alias, target := range aliases {
			if target == canonical {
				variants = append(variants, alias)
			}
		}
		terms[canonical] = variants
	}

	counts := make(map[string]int, len(terms))
	for _, posting := range postings {
		text := strings.ToLower(posting)
		for canonical, variants := range terms {
			for _, term := range variants {
				if containsToken(text, term) {
					counts[canonical]++
					break
				}
			}
		}
	}

	out := make([]Mention, 0, len(counts))
	total := float64(len(postings))
	for skill, count := range counts {
		out = append(out, Mention{
			Skill:     skill,
			Count:     count,
			Frequency: float64(count) / total,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Skill < out[j].Skill
	})
	return out
}

// containsToken reports whether term appears in text on word boundaries.
// A plain substring check would count "go" inside "google".
func containsToken(text, term string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], term)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(term)
		beforeOK := start == 0 || !isWordChar(text[start-1])
		afterOK := end == len(text) || !isWordChar(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
		if idx >= len(text) {
			return false
		}
	}
}

func isWordChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9' || b == '+' || b == '#'
}
