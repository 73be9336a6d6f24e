// Package market records demand signals, ingests external job feeds, and
// manages checklist revision proposals derived from them.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ashirimi1019/market-ready/internal/apperrors"
)

// Connector pulls job posting texts for a pathway from one external source.
type Connector interface {
	Name() string
	FetchPostings(ctx context.Context, pathwayName string) ([]string, error)
}

// maxPostings bounds one fetch batch.
const maxPostings = 50

func providerErr(name string, err error) error {
	return fmt.Errorf("provider %s: %w: %w", name, err, apperrors.ErrExternalUnavailable)
}

// AdzunaConnector fetches postings from the Adzuna search API.
type AdzunaConnector struct {
	AppID  string
	AppKey string
	Client *http.Client
}

// NewAdzunaConnector builds the connector. Credentials are required.
func NewAdzunaConnector(appID, appKey string, timeout time.Duration) *AdzunaConnector {
	return &AdzunaConnector{
		AppID:  appID,
		AppKey: appKey,
		Client: &http.Client{Timeout: timeout},
	}
}

func (c *AdzunaConnector) Name() string { return "adzuna" }

// FetchPostings implements Connector.
func (c *AdzunaConnector) FetchPostings(ctx context.Context, pathwayName string) ([]string, error) {
	if c.AppID == "" || c.AppKey == "" {
		return nil, providerErr(c.Name(), fmt.Errorf("credentials not configured"))
	}

	endpoint := fmt.Sprintf(
		"https://api.adzuna.com/v1/api/jobs/us/search/1?app_id=%s&app_key=%s&results_per_page=%d&what=%s&content-type=application/json",
		url.QueryEscape(c.AppID), url.QueryEscape(c.AppKey), maxPostings, url.QueryEscape(pathwayName),
	)
	body, err := getJSON(ctx, c.Client, endpoint, nil)
	if err != nil {
		return nil, providerErr(c.Name(), err)
	}

	var payload struct {
		Results []struct {
			Title       string `json:"title"`
			Description string `json:"description"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, providerErr(c.Name(), fmt.Errorf("malformed response: %w", err))
	}

	postings := make([]string, 0, len(payload.Results))
	for _, r := range payload.Results {
		postings = append(postings, r.Title+"\n"+r.Description)
	}
	return postings, nil
}

// CareerOneStopConnector fetches postings from the CareerOneStop API.
type CareerOneStopConnector struct {
	UserID string
	Token  string
	Client *http.Client
}

// NewCareerOneStopConnector builds the connector.
func NewCareerOneStopConnector(userID, token string, timeout time.Duration) *CareerOneStopConnector {
	return &CareerOneStopConnector{
		UserID: userID,
		Token:  token,
		Client: &http.Client{Timeout: timeout},
	}
}

func (c *CareerOneStopConnector) Name() string { return "careeronestop" }

// FetchPostings implements Connector.
func (c *CareerOneStopConnector) FetchPostings(ctx context.Context, pathwayName string) ([]string, error) {
	if c.UserID == "" || c.Token == "" {
		return nil, providerErr(c.Name(), fmt.Errorf("credentials not configured"))
	}

	endpoint := fmt.Sprintf(
		"https://api.careeronestop.org/v1/jobsearch/%s/%s/US/25/0/DATE/ASC/0/%d",
		url.PathEscape(c.UserID), url.PathEscape(pathwayName), maxPostings,
	)
	body, err := getJSON(ctx, c.Client, endpoint, map[string]string{
		"Authorization": "Bearer " + c.Token,
	})
	if err != nil {
		return nil, providerErr(c.Name(), err)
	}

	var payload struct {
		Jobs []struct {
			JobTitle string `json:"JobTitle"`
			Snippet  string `json:"Snippet"`
		} `json:"Jobs"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, providerErr(c.Name(), fmt.Errorf("malformed response: %w", err))
	}

	postings := make([]string, 0, len(payload.Jobs))
	for _, j := range payload.Jobs {
		postings = append(postings, j.JobTitle+"\n"+j.Snippet)
	}
	return postings, nil
}

// ONetConnector reads occupation technology-skill profiles from O*NET Web
// Services. Each hot technology counts as one synthetic posting so the
// frequency math matches the posting-based connectors.
type ONetConnector struct {
	Client *http.Client
}

// NewONetConnector builds the connector. O*NET's public endpoints need no
// credentials.
func NewONetConnector(timeout time.Duration) *ONetConnector {
	return &ONetConnector{Client: &http.Client{Timeout: timeout}}
}

func (c *ONetConnector) Name() string { return "onet" }

// FetchPostings implements Connector.
func (c *ONetConnector) FetchPostings(ctx context.Context, pathwayName string) ([]string, error) {
	endpoint := fmt.Sprintf(
		"https://services.onetcenter.org/ws/online/search?keyword=%s",
		url.QueryEscape(pathwayName),
	)
	body, err := getJSON(ctx, c.Client, endpoint, map[string]string{"Accept": "application/json"})
	if err != nil {
		return nil, providerErr(c.Name(), err)
	}

	var payload struct {
		Occupation []struct {
			Title string `json:"title"`
			Tags  struct {
				HotTechnology []string `json:"hot_technology"`
			} `json:"tags"`
		} `json:"occupation"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, providerErr(c.Name(), fmt.Errorf("malformed response: %w", err))
	}

	var postings []string
	for _, occ := range payload.Occupation {
		text := occ.Title
		if len(occ.Tags.HotTechnology) > 0 {
			text += "\n" + strings.Join(occ.Tags.HotTechnology, "\n")
		}
		postings = append(postings, text)
		if len(postings) >= maxPostings {
			break
		}
	}
	return postings, nil
}

func getJSON(ctx context.Context, client *http.Client, endpoint string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP status %d", resp.StatusCode)
	}
	return body, nil
}
