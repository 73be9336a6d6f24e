// Package config provides environment-driven configuration for the readiness API.
package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Config holds everything the server needs to start.
type Config struct {
	Port        int
	Mode        string // "development" or "production"
	DatabaseURL string

	// GeminiAPIKey enables AI adjudication, proposal copilot, and the
	// mission orchestrator. When empty those features fall back to
	// deterministic rules or report the provider as unavailable.
	GeminiAPIKey string

	// GitHubToken raises the rate limit for repository proof scans.
	GitHubToken string

	// External market providers. A provider with no credentials is
	// skipped during ingestion and reported as degraded.
	AdzunaAppID         string
	AdzunaAppKey        string
	CareerOneStopUserID string
	CareerOneStopToken  string

	// ProviderTimeout bounds every outbound provider call.
	ProviderTimeout time.Duration

	// UploadDir is where evidence uploads are stored by the local
	// object store.
	UploadDir string

	Scoring ScoringConfig
}

// Load reads configuration from the environment. DATABASE_URL is the only
// hard requirement; everything else has a default or degrades a feature.
func Load() (*Config, error) {
	cfg := &Config{
		Port:                intEnv("PORT", 8080),
		Mode:                envOr("APP_MODE", "development"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		GeminiAPIKey:        os.Getenv("GEMINI_API_KEY"),
		GitHubToken:         os.Getenv("GITHUB_TOKEN"),
		AdzunaAppID:         os.Getenv("ADZUNA_APP_ID"),
		AdzunaAppKey:        os.Getenv("ADZUNA_APP_KEY"),
		CareerOneStopUserID: os.Getenv("CAREERONESTOP_USER_ID"),
		CareerOneStopToken:  os.Getenv("CAREERONESTOP_TOKEN"),
		ProviderTimeout:     time.Duration(intEnv("PROVIDER_TIMEOUT_SECONDS", 30)) * time.Second,
		UploadDir:           envOr("UPLOAD_DIR", "uploads"),
		Scoring:             DefaultScoringConfig(),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	if raw := os.Getenv("SCORE_BANDS"); raw != "" {
		bands, err := ParseBands(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid SCORE_BANDS: %w", err)
		}
		cfg.Scoring.Bands = bands
	}
	if err := cfg.Scoring.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Band maps a minimum score (inclusive) to a label. Bands are evaluated
// highest threshold first.
type Band struct {
	Min   float64
	Label string
}

// ScoringConfig parameterizes the MRI formula. Weights must sum to 1 and
// bands must be strictly decreasing so every score lands in exactly one.
type ScoringConfig struct {
	FormulaVersion string

	SkillMatchWeight      float64
	MarketDemandWeight    float64
	EvidenceDensityWeight float64

	// ProficiencyCredit maps proficiency_level to partial credit.
	ProficiencyCredit map[string]float64

	// AICertBonus multiplies credit for AI-verified certificate proofs on
	// non-negotiable items. Item credit stays capped at 1.0.
	AICertBonus float64

	// CapCeiling is the maximum score when a non-negotiable item has no
	// accepted proof. It must sit below the top band threshold.
	CapCeiling float64

	// SignalHalfLife controls exponential recency decay of market signals.
	SignalHalfLife time.Duration

	Bands []Band
}

// DefaultScoringConfig returns the 2026.1 formula parameters.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		FormulaVersion:        "2026.1",
		SkillMatchWeight:      0.40,
		MarketDemandWeight:    0.30,
		EvidenceDensityWeight: 0.30,
		ProficiencyCredit: map[string]float64{
			"beginner":     0.50,
			"intermediate": 0.75,
			"professional": 1.00,
		},
		AICertBonus:    1.15,
		CapCeiling:     74.9,
		SignalHalfLife: 90 * 24 * time.Hour,
		Bands: []Band{
			{Min: 85, Label: "Market Ready"},
			{Min: 65, Label: "Competitive"},
			{Min: 45, Label: "Developing"},
			{Min: 0, Label: "Focus on Gaps"},
		},
	}
}

func (c *ScoringConfig) normalize() error {
	sum := c.SkillMatchWeight + c.MarketDemandWeight + c.EvidenceDensityWeight
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("scoring weights must sum to 1.0, got %.3f", sum)
	}
	if len(c.Bands) == 0 {
		return fmt.Errorf("at least one score band is required")
	}
	sorted := sort.SliceIsSorted(c.Bands, func(i, j int) bool {
		return c.Bands[i].Min > c.Bands[j].Min
	})
	if !sorted {
		return fmt.Errorf("score bands must be ordered by descending threshold")
	}
	for i := 1; i < len(c.Bands); i++ {
		if c.Bands[i].Min == c.Bands[i-1].Min {
			return fmt.Errorf("duplicate band threshold %.1f", c.Bands[i].Min)
		}
	}
	if c.Bands[len(c.Bands)-1].Min != 0 {
		return fmt.Errorf("lowest band must start at 0")
	}
	if c.CapCeiling >= c.Bands[0].Min {
		return fmt.Errorf("cap ceiling %.1f must be below the top band threshold %.1f", c.CapCeiling, c.Bands[0].Min)
	}
	for level := range c.ProficiencyCredit {
		switch level {
		case "beginner", "intermediate", "professional":
		default:
			return fmt.Errorf("unknown proficiency level %q", level)
		}
	}
	return nil
}

// BandLabel returns the label for a 0-100 score.
func (c *ScoringConfig) BandLabel(score float64) string {
	for _, b := range c.Bands {
		if score >= b.Min {
			return b.Label
		}
	}
	return c.Bands[len(c.Bands)-1].Label
}

// ParseBands parses "85:Market Ready,65:Competitive,45:Developing,0:Focus on Gaps".
// Used by the SCORE_BANDS override.
func ParseBands(s string) ([]Band, error) {
	parts := strings.Split(s, ",")
	bands := make([]Band, 0, len(parts))
	for _, p := range parts {
		kv := strings.SplitN(strings.TrimSpace(p), ":", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid band %q, want min:label", p)
		}
		min, err := strconv.ParseFloat(kv[0], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid band threshold %q: %w", kv[0], err)
		}
		bands = append(bands, Band{Min: min, Label: kv[1]})
	}
	return bands, nil
}
