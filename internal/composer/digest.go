package composer

import (
	"regexp"
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/book-expert/podcast-service/internal/core"
)

const (
	maxAbstractWords     = 150
	maxKeyPoints         = 3
	maxSharedConcepts    = 5
	minSharedConcepts    = 5
	truncationSuffix     = "..."
	unknownAuthors       = "Unknown authors"
	untitledPaper        = "Untitled Paper"
	conceptWordRegex     = `\b\w{5,}\b`
	sentenceBoundaryExpr = `([.!?])\s+`
)

var (
	conceptWordPattern      = regexp.MustCompile(conceptWordRegex)
	sentenceBoundaryPattern = regexp.MustCompile(sentenceBoundaryExpr)
)

// importanceIndicators mark abstract sentences worth surfacing as key points.
var importanceIndicators = []string{
	"we show", "we demonstrate", "we propose", "we present",
	"we find", "we introduce", "results indicate", "we prove",
	"key contribution", "importantly", "significantly",
}

// connection links a paper to another one in the same episode.
type connection struct {
	Kinds      []string
	OtherIndex int
}

// paperDigest is the prompt-sized view of a paper.
type paperDigest struct {
	ID          string
	Title       string
	Authors     string
	Abstract    string
	Published   string
	Categories  []string
	KeyPoints   []string
	Connections []connection
	concepts    []string
}

func digestPapers(papers []core.Paper) []paperDigest {
	digests := lo.Map(papers, func(paper core.Paper, _ int) paperDigest {
		title := strings.TrimSpace(paper.Title)
		if title == "" {
			title = untitledPaper
		}

		return paperDigest{
			ID:          paper.ID,
			Title:       title,
			Authors:     formatAuthors(paper.Authors),
			Abstract:    truncateWords(paper.Abstract, maxAbstractWords),
			Published:   paper.Published,
			Categories:  paper.Categories,
			KeyPoints:   extractKeyPoints(paper.Abstract),
			Connections: nil,
			concepts:    lo.Uniq(conceptWordPattern.FindAllString(strings.ToLower(paper.Abstract), -1)),
		}
	})

	if len(digests) > 1 {
		linkDigests(digests)
	}

	return digests
}

func formatAuthors(authors []string) string {
	switch len(authors) {
	case 0:
		return unknownAuthors
	case 1:
		return authors[0]
	case 2:
		return authors[0] + " and " + authors[1]
	default:
		return authors[0] + ", " + authors[1] + ", et al."
	}
}

func truncateWords(text string, limit int) string {
	words := strings.Fields(text)
	if len(words) <= limit {
		return strings.Join(words, " ")
	}

	return strings.Join(words[:limit], " ") + truncationSuffix
}

func splitSentences(text string) []string {
	marked := sentenceBoundaryPattern.ReplaceAllString(strings.TrimSpace(text), "$1\n")

	return lo.Compact(lo.Map(strings.Split(marked, "\n"), func(sentence string, _ int) string {
		return strings.TrimSpace(sentence)
	}))
}

func extractKeyPoints(abstract string) []string {
	sentences := splitSentences(abstract)

	points := lo.Filter(sentences, func(sentence string, _ int) bool {
		lower := strings.ToLower(sentence)

		return lo.SomeBy(importanceIndicators, func(indicator string) bool {
			return strings.Contains(lower, indicator)
		})
	})

	if len(points) == 0 && len(sentences) > 1 {
		points = []string{sentences[0], sentences[len(sentences)-1]}
	}

	if len(points) > maxKeyPoints {
		points = points[:maxKeyPoints]
	}

	return points
}

// linkDigests records shared categories and shared abstract vocabulary
// between every pair of papers.
func linkDigests(digests []paperDigest) {
	for i := range digests {
		for j := range digests {
			if i == j {
				continue
			}

			sharedCategories := lo.Intersect(digests[i].Categories, digests[j].Categories)
			sharedConcepts := lo.Intersect(digests[i].concepts, digests[j].concepts)

			if len(sharedCategories) == 0 && len(sharedConcepts) < minSharedConcepts {
				continue
			}

			slices.Sort(sharedCategories)
			slices.Sort(sharedConcepts)

			kinds := make([]string, 0, 2)
			if len(sharedCategories) > 0 {
				kinds = append(kinds, "shared categories: "+strings.Join(sharedCategories, ", "))
			}

			if len(sharedConcepts) > 0 {
				kinds = append(kinds, "shared concepts: "+strings.Join(lo.Subset(sharedConcepts, 0, maxSharedConcepts), ", "))
			}

			digests[i].Connections = append(digests[i].Connections, connection{Kinds: kinds, OtherIndex: j})
		}
	}
}

// DefaultTitle names an episode after the most common category of its
// papers, preferring the first seen on ties.
func DefaultTitle(papers []core.Paper) string {
	categories := lo.FlatMap(papers, func(paper core.Paper, _ int) []string {
		return paper.Categories
	})
	if len(categories) == 0 {
		return "Research Paper Discussion"
	}

	counts := lo.CountValues(categories)
	best := categories[0]

	for _, category := range lo.Uniq(categories) {
		if counts[category] > counts[best] {
			best = category
		}
	}

	return "Research Frontiers: " + best
}
