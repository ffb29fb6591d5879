// Package kitsu implements the upstream catalog client for the Kitsu JSON:API.
package kitsu

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/kazewatari/anisync/internal/domain"
)

// DefaultBaseURL is the public Kitsu API edge.
const DefaultBaseURL = "https://kitsu.io/api/edge"

// StatusError reports a non-2xx upstream response. It carries the status code
// so the retry executor can classify it.
type StatusError struct {
	Code int
	URL  string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("kitsu: unexpected status %d from %s", e.Code, e.URL)
}

// StatusCode returns the upstream HTTP status.
func (e *StatusError) StatusCode() int {
	return e.Code
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the catalog API. Defaults to DefaultBaseURL.
	BaseURL string

	// UserAgent sent with every request.
	UserAgent string

	// Timeout per request.
	Timeout time.Duration
}

// Client fetches seasonal catalog pages. It performs plain HTTP only;
// throttling and retries are composed around it by the orchestrator.
type Client struct {
	httpClient *http.Client
	cfg        Config
	logger     zerolog.Logger
}

// NewClient creates a catalog client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "anisync/1.0"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		logger:     log.With().Str("component", "kitsu").Logger(),
	}
}

// apiResponse mirrors the JSON:API envelope of the /anime listing.
type apiResponse struct {
	Data []struct {
		ID         string `json:"id"`
		Attributes struct {
			Titles struct {
				En   string `json:"en"`
				EnJp string `json:"en_jp"`
			} `json:"titles"`
			Synopsis      string `json:"synopsis"`
			StartDate     string `json:"startDate"`
			EpisodeCount  int    `json:"episodeCount"`
			Subtype       string `json:"subtype"`
			AverageRating string `json:"averageRating"`
			PosterImage   struct {
				Medium string `json:"medium"`
			} `json:"posterImage"`
		} `json:"attributes"`
		Relationships struct {
			Genres struct {
				Data []struct {
					ID string `json:"id"`
				} `json:"data"`
			} `json:"genres"`
		} `json:"relationships"`
	} `json:"data"`
	Included []struct {
		Type       string `json:"type"`
		ID         string `json:"id"`
		Attributes struct {
			Name string `json:"name"`
		} `json:"attributes"`
	} `json:"included"`
	Links struct {
		Next string `json:"next"`
	} `json:"links"`
}

// FetchPage retrieves one raw page of the given season. Non-2xx responses are
// returned as *StatusError for classification by the retry executor.
func (c *Client) FetchPage(ctx context.Context, season domain.Season, year, page, pageSize int) ([]byte, error) {
	u, err := url.Parse(c.cfg.BaseURL + "/anime")
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	q := u.Query()
	q.Set("filter[season]", string(season))
	q.Set("filter[seasonYear]", strconv.Itoa(year))
	// Airing status can only be filtered for the season that is running now;
	// past seasons would match nothing.
	if curSeason, curYear := domain.CurrentSeason(); season == curSeason && year == curYear {
		q.Set("filter[status]", "current")
	}
	q.Set("page[limit]", strconv.Itoa(pageSize))
	q.Set("page[offset]", strconv.Itoa((page-1)*pageSize))
	q.Set("include", "genres")
	q.Set("fields[genres]", "name")
	q.Set("sort", "-userCount")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/vnd.api+json")

	c.logger.Debug().
		Str("season", string(season)).
		Int("year", year).
		Int("page", page).
		Msg("Fetching catalog page")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{Code: resp.StatusCode, URL: u.String()}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return body, nil
}

// DecodePage parses a raw page payload into catalog records. Genre names are
// resolved from the JSON:API included resources.
func (c *Client) DecodePage(raw []byte) (*domain.Page, error) {
	var resp apiResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal page: %w", err)
	}

	genreNames := make(map[string]string, len(resp.Included))
	for _, inc := range resp.Included {
		if inc.Type == "genres" {
			genreNames[inc.ID] = inc.Attributes.Name
		}
	}

	page := &domain.Page{
		Records: make([]domain.Anime, 0, len(resp.Data)),
		HasNext: resp.Links.Next != "",
	}

	for _, d := range resp.Data {
		a := domain.Anime{
			KitsuID:      d.ID,
			TitleEnglish: d.Attributes.Titles.En,
			TitleRomaji:  d.Attributes.Titles.EnJp,
			Synopsis:     d.Attributes.Synopsis,
			StartDate:    d.Attributes.StartDate,
			EpisodeCount: d.Attributes.EpisodeCount,
			Subtype:      d.Attributes.Subtype,
			PosterImage:  d.Attributes.PosterImage.Medium,
		}

		if d.Attributes.AverageRating != "" {
			if rating, err := strconv.ParseFloat(d.Attributes.AverageRating, 64); err == nil {
				a.AverageRating = rating
			}
		}

		for _, g := range d.Relationships.Genres.Data {
			if name, ok := genreNames[g.ID]; ok && name != "" {
				a.Genres = append(a.Genres, name)
			}
		}

		page.Records = append(page.Records, a)
	}

	return page, nil
}
