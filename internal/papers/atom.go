package papers

import (
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/book-expert/podcast-service/internal/core"
)

const (
	linkTitlePDF      = "pdf"
	linkRelAlternate  = "alternate"
	absPathSegment    = "/abs/"
	atomTimestampForm = time.RFC3339
)

type atomFeed struct {
	Entries      []atomEntry `xml:"http://www.w3.org/2005/Atom entry"`
	TotalResults int         `xml:"http://a9.com/-/spec/opensearch/1.1/ totalResults"`
}

type atomEntry struct {
	ID              string         `xml:"http://www.w3.org/2005/Atom id"`
	Title           string         `xml:"http://www.w3.org/2005/Atom title"`
	Summary         string         `xml:"http://www.w3.org/2005/Atom summary"`
	Published       string         `xml:"http://www.w3.org/2005/Atom published"`
	Updated         string         `xml:"http://www.w3.org/2005/Atom updated"`
	Comment         string         `xml:"http://arxiv.org/schemas/atom comment"`
	PrimaryCategory atomCategory   `xml:"http://arxiv.org/schemas/atom primary_category"`
	Authors         []atomAuthor   `xml:"http://www.w3.org/2005/Atom author"`
	Links           []atomLink     `xml:"http://www.w3.org/2005/Atom link"`
	Categories      []atomCategory `xml:"http://www.w3.org/2005/Atom category"`
}

type atomAuthor struct {
	Name string `xml:"http://www.w3.org/2005/Atom name"`
}

type atomLink struct {
	Href  string `xml:"href,attr"`
	Rel   string `xml:"rel,attr"`
	Title string `xml:"title,attr"`
	Type  string `xml:"type,attr"`
}

type atomCategory struct {
	Term string `xml:"term,attr"`
}

// papers converts the feed entries, dropping arXiv's error pseudo-entries.
func (f *atomFeed) papers() []core.Paper {
	valid := lo.Filter(f.Entries, func(entry atomEntry, _ int) bool {
		return entry.ID != "" && !strings.Contains(entry.ID, errorEntryMarker)
	})

	return lo.Map(valid, func(entry atomEntry, _ int) core.Paper {
		return entry.paper()
	})
}

func (e *atomEntry) paper() core.Paper {
	abstractURL := strings.TrimSpace(e.ID)

	paper := core.Paper{
		ID:              paperID(abstractURL),
		Title:           collapse(e.Title),
		Abstract:        collapse(e.Summary),
		PDFURL:          "",
		URL:             abstractURL,
		Comment:         collapse(e.Comment),
		PrimaryCategory: e.PrimaryCategory.Term,
		Published:       formatDate(e.Published),
		Updated:         formatDate(e.Updated),
		Authors: lo.Map(e.Authors, func(author atomAuthor, _ int) string {
			return collapse(author.Name)
		}),
		Categories: lo.Uniq(lo.Compact(lo.Map(e.Categories, func(category atomCategory, _ int) string {
			return category.Term
		}))),
	}

	for _, link := range e.Links {
		if link.Title == linkTitlePDF {
			paper.PDFURL = link.Href
		}

		if paper.URL == "" && link.Rel == linkRelAlternate {
			paper.URL = link.Href
		}
	}

	if paper.PrimaryCategory == "" && len(paper.Categories) > 0 {
		paper.PrimaryCategory = paper.Categories[0]
	}

	return paper
}

// paperID extracts "2401.12345v2" from "http://arxiv.org/abs/2401.12345v2".
func paperID(abstractURL string) string {
	if index := strings.LastIndex(abstractURL, absPathSegment); index >= 0 {
		return abstractURL[index+len(absPathSegment):]
	}

	return abstractURL[strings.LastIndex(abstractURL, "/")+1:]
}

func formatDate(value string) string {
	parsed, err := time.Parse(atomTimestampForm, strings.TrimSpace(value))
	if err != nil {
		return strings.TrimSpace(value)
	}

	return parsed.Format(paperDateLayout)
}

func collapse(value string) string {
	return strings.Join(strings.Fields(value), " ")
}
