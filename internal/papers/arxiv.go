// Package papers implements core.PaperSource against the arXiv export API.
package papers

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/samber/lo"

	"github.com/book-expert/podcast-service/internal/core"
)

// DefaultBaseURL is the public arXiv query endpoint.
const DefaultBaseURL = "https://export.arxiv.org/api/query"

const (
	defaultMaxResults = 10
	probeQuery        = "all:test"
	fallbackQuery     = "all:*"
	queryDateLayout   = "20060102"
	paperDateLayout   = "2006-01-02"
	errorEntryMarker  = "/api/errors"
	maxErrorBodyBytes = 512
	hoursPerDay       = 24
)

// Error message formats.
const (
	errFmtBuildRequest = "failed to create arXiv request: %w"
	errFmtRequest      = "%w: arXiv request failed: %w"
	errFmtStatus       = "arXiv returned status %d: %s"
	errFmtDecode       = "failed to decode arXiv feed: %w"
	errFmtPaperMissing = "%w: paper %s"
)

// ErrUnexpectedStatus is returned for non-retryable HTTP failures.
var ErrUnexpectedStatus = errors.New("unexpected arXiv status")

var sortParameters = map[core.SortOrder]string{
	core.SortRelevance:     "relevance",
	core.SortSubmittedDate: "submittedDate",
	core.SortLastUpdated:   "lastUpdatedDate",
}

// Client queries arXiv over HTTP and parses the Atom response.
type Client struct {
	httpClient *http.Client
	log        *logger.Logger
	now        func() time.Time
	baseURL    string
}

// NewClient creates a Client. An empty baseURL selects DefaultBaseURL.
func NewClient(baseURL string, timeout time.Duration, log *logger.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
		now:        time.Now,
		baseURL:    baseURL,
	}
}

// WithClock returns a copy of the client that reads the current time from now.
func (c *Client) WithClock(now func() time.Time) *Client {
	clone := *c
	clone.now = now

	return &clone
}

// Search returns the papers matching criteria and the total reported by arXiv.
func (c *Client) Search(ctx context.Context, criteria core.SearchCriteria) ([]core.Paper, int, error) {
	maxResults := criteria.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	sortBy, ok := sortParameters[criteria.SortBy]
	if !ok {
		sortBy = sortParameters[core.SortSubmittedDate]
	}

	params := url.Values{}
	params.Set("search_query", BuildQuery(criteria, c.now()))
	params.Set("start", "0")
	params.Set("max_results", strconv.Itoa(maxResults))
	params.Set("sortBy", sortBy)
	params.Set("sortOrder", "descending")

	feed, err := c.query(ctx, params)
	if err != nil {
		return nil, 0, err
	}

	papers := feed.papers()
	total := max(feed.TotalResults, len(papers))

	c.log.Info("arXiv search returned %d of %d papers", len(papers), total)

	return papers, total, nil
}

// FetchByID returns a single paper. Unknown identifiers wrap core.ErrNotFound.
func (c *Client) FetchByID(ctx context.Context, id string) (*core.Paper, error) {
	params := url.Values{}
	params.Set("id_list", strings.TrimSpace(id))
	params.Set("max_results", "1")

	feed, err := c.query(ctx, params)
	if err != nil {
		return nil, err
	}

	papers := feed.papers()
	if len(papers) == 0 {
		return nil, fmt.Errorf(errFmtPaperMissing, core.ErrNotFound, id)
	}

	return &papers[0], nil
}

// Probe issues the cheapest possible query to test whether a rate limit has lifted.
func (c *Client) Probe(ctx context.Context) error {
	params := url.Values{}
	params.Set("search_query", probeQuery)
	params.Set("max_results", "1")

	_, err := c.query(ctx, params)

	return err
}

// BuildQuery renders criteria as an arXiv search_query expression. Topic,
// category and author terms are OR-ed within their group and the groups are
// AND-ed together with an optional submission date window.
func BuildQuery(criteria core.SearchCriteria, now time.Time) string {
	groups := make([]string, 0, 4)

	groups = appendGroup(groups, criteria.Topics, func(topic string) string { return "all:" + topic })
	groups = appendGroup(groups, criteria.Categories, func(category string) string { return "cat:" + category })
	groups = appendGroup(groups, criteria.Authors, func(author string) string { return `au:"` + author + `"` })

	if criteria.DaysBack > 0 {
		cutoff := now.Add(-time.Duration(criteria.DaysBack) * hoursPerDay * time.Hour)
		groups = append(groups, "submittedDate:["+cutoff.Format(queryDateLayout)+"000000 TO 99991231235959]")
	}

	if len(groups) == 0 {
		return fallbackQuery
	}

	return strings.Join(groups, " AND ")
}

func appendGroup(groups, terms []string, format func(string) string) []string {
	cleaned := lo.Compact(lo.Map(terms, func(term string, _ int) string {
		return strings.TrimSpace(term)
	}))
	if len(cleaned) == 0 {
		return groups
	}

	return append(groups, "("+strings.Join(lo.Map(cleaned, func(term string, _ int) string {
		return format(term)
	}), " OR ")+")")
}

func (c *Client) query(ctx context.Context, params url.Values) (*atomFeed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf(errFmtBuildRequest, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		return nil, fmt.Errorf(errFmtRequest, core.ErrTransient, err)
	}
	defer func() { _ = resp.Body.Close() }()

	statusErr := classifyStatus(resp)
	if statusErr != nil {
		return nil, statusErr
	}

	var feed atomFeed

	err = xml.NewDecoder(resp.Body).Decode(&feed)
	if err != nil {
		return nil, fmt.Errorf(errFmtDecode, err)
	}

	return &feed, nil
}

func classifyStatus(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	statusErr := fmt.Errorf(errFmtStatus, resp.StatusCode, strings.TrimSpace(string(body)))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable:
		return fmt.Errorf("%w: %w", core.ErrRateLimited, statusErr)
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %w", core.ErrTransient, statusErr)
	default:
		return fmt.Errorf("%w: %w", ErrUnexpectedStatus, statusErr)
	}
}
