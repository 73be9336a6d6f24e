// Package gitscan inspects GitHub repositories for evidence that a user
// actually works with the skills a checklist item requires.
package gitscan

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
	"github.com/ashirimi1019/market-ready/internal/skills"
)

const (
	apiBase = "https://api.github.com"
	rawBase = "https://raw.githubusercontent.com"
)

// manifestFiles are fetched from the default branch and scanned for skill
// mentions alongside the language breakdown.
var manifestFiles = []string{
	"README.md",
	"package.json",
	"requirements.txt",
	"pyproject.toml",
	"go.mod",
}

// Scan is the outcome of one repository inspection.
type Scan struct {
	Owner         string   `json:"owner"`
	Repo          string   `json:"repo"`
	Languages     []string `json:"languages"`
	MatchedSkills []string `json:"matched_skills"`
	Confidence    float64  `json:"confidence"` // 0..100, share of required skills found
}

// Scanner fetches repository metadata from GitHub. A token is optional
// and only raises rate limits.
type Scanner struct {
	token  string
	client *http.Client
}

// NewScanner builds a Scanner.
func NewScanner(token string, timeout time.Duration) *Scanner {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Scanner{
		token:  token,
		client: &http.Client{Timeout: timeout},
	}
}

// ScanRepository inspects the repository at repoURL for the required
// skills. Returns ErrValidation for non-GitHub URLs and
// ErrExternalUnavailable when GitHub cannot be reached.
func (s *Scanner) ScanRepository(ctx context.Context, repoURL string, required []string) (*Scan, error) {
	owner, repo, err := parseRepoURL(repoURL)
	if err != nil {
		return nil, err
	}

	languages, err := s.fetchLanguages(ctx, owner, repo)
	if err != nil {
		return nil, err
	}

	var corpus strings.Builder
	for _, lang := range languages {
		corpus.WriteString(lang)
		corpus.WriteString("\n")
	}
	for _, name := range manifestFiles {
		content, ferr := s.fetchRaw(ctx, owner, repo, name)
		if ferr != nil {
			continue // missing manifests are expected
		}
		corpus.WriteString(content)
		corpus.WriteString("\n")
	}

	scan := &Scan{Owner: owner, Repo: repo, Languages: languages}
	if len(required) == 0 {
		return scan, nil
	}

	text := corpus.String()
	seen := make(map[string]bool)
	for _, skill := range required {
		canonical := skills.Normalize(skill)
		if canonical == "" || seen[canonical] {
			continue
		}
		seen[canonical] = true
		if mentions := skills.CountMentions([]string{text}, []string{canonical}); len(mentions) > 0 {
			scan.MatchedSkills = append(scan.MatchedSkills, canonical)
		}
	}
	if len(seen) > 0 {
		scan.Confidence = float64(len(scan.MatchedSkills)) / float64(len(seen)) * 100
	}
	return scan, nil
}

func parseRepoURL(repoURL string) (owner, repo string, err error) {
	parsed, err := url.Parse(repoURL)
	if err != nil || parsed.Host == "" {
		return "", "", fmt.Errorf("invalid repository URL %q: %w", repoURL, apperrors.ErrValidation)
	}
	if parsed.Host != "github.com" && parsed.Host != "www.github.com" {
		return "", "", fmt.Errorf("only github.com repositories are supported: %w", apperrors.ErrValidation)
	}
	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repository URL must be github.com/owner/repo: %w", apperrors.ErrValidation)
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), nil
}

func (s *Scanner) fetchLanguages(ctx context.Context, owner, repo string) ([]string, error) {
	body, status, err := s.get(ctx, fmt.Sprintf("%s/repos/%s/%s/languages", apiBase, owner, repo))
	if err != nil {
		return nil, fmt.Errorf("failed to reach GitHub: %w: %w", err, apperrors.ErrExternalUnavailable)
	}
	switch status {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("repository %s/%s: %w", owner, repo, apperrors.ErrNotFound)
	case http.StatusForbidden, http.StatusTooManyRequests:
		return nil, fmt.Errorf("GitHub rate limit: %w", apperrors.ErrExternalUnavailable)
	default:
		return nil, fmt.Errorf("GitHub returned status %d: %w", status, apperrors.ErrExternalUnavailable)
	}

	var byLanguage map[string]int64
	if err := json.Unmarshal(body, &byLanguage); err != nil {
		return nil, fmt.Errorf("failed to decode language breakdown: %w", err)
	}
	languages := make([]string, 0, len(byLanguage))
	for lang := range byLanguage {
		languages = append(languages, lang)
	}
	return languages, nil
}

func (s *Scanner) fetchRaw(ctx context.Context, owner, repo, path string) (string, error) {
	for _, branch := range []string{"main", "master"} {
		body, status, err := s.get(ctx, fmt.Sprintf("%s/%s/%s/%s/%s", rawBase, owner, repo, branch, path))
		if err != nil {
			return "", err
		}
		if status == http.StatusOK {
			return string(body), nil
		}
	}
	return "", fmt.Errorf("%s not found", path)
}

func (s *Scanner) get(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}
