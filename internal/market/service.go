package market

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ashirimi1019/market-ready/internal/apperrors"
	"github.com/ashirimi1019/market-ready/internal/db"
	"github.com/ashirimi1019/market-ready/internal/logger"
	"github.com/ashirimi1019/market-ready/internal/skills"
)

// topSignalsPerBatch caps how many skill frequencies one ingest batch
// records.
const topSignalsPerBatch = 25

// Store is the persistence surface the market service needs.
type Store interface {
	GetPathway(ctx context.Context, id uuid.UUID) (*db.Pathway, error)
	ListPathways(ctx context.Context, activeOnly bool) ([]db.Pathway, error)
	InsertSignals(ctx context.Context, pathwayID uuid.UUID, signals []db.MarketSignalInput) (int, error)
	ListSignals(ctx context.Context, pathwayID uuid.UUID, since time.Time) ([]db.MarketSignal, error)
	RecordRawIngestion(ctx context.Context, source, storageKey string, metadata db.JSONMap) (*db.MarketRawIngestion, error)
	LastAutomationRun(ctx context.Context, pathwayID uuid.UUID) (*time.Time, error)
	InsertProposal(ctx context.Context, pathwayID uuid.UUID, summary, rationale string, diff db.ProposalDiff, createdBy string) (*db.MarketProposal, error)
	GetProposal(ctx context.Context, id uuid.UUID) (*db.MarketProposal, error)
	ListProposals(ctx context.Context, pathwayID uuid.UUID, status string) ([]db.MarketProposal, error)
	TransitionProposal(ctx context.Context, id uuid.UUID, from, to, actor string) (*db.MarketProposal, error)
	SetProposalVersion(ctx context.Context, id uuid.UUID, versionNumber int) error
	PublishedVersion(ctx context.Context, pathwayID uuid.UUID) (*db.ChecklistVersion, error)
	ListItems(ctx context.Context, versionID uuid.UUID) ([]db.ChecklistItem, error)
	CreateDraft(ctx context.Context, pathwayID uuid.UUID, items []db.ChecklistItemInput, notes, actor string) (*db.ChecklistVersion, error)
	ListSkills(ctx context.Context) ([]db.Skill, error)
	InsertAuditLog(ctx context.Context, log *db.AIAuditLog) error
}

// Service wires connectors, the proposal copilot, and the store.
type Service struct {
	store      Store
	connectors map[string]Connector
	copilot    ProposalCopilot // nil disables AI synthesis
	log        *logger.Logger

	mu      sync.Mutex
	lastRun map[uuid.UUID]time.Time // automation cooldown per pathway
}

// NewService builds a Service. Register connectors with AddConnector.
func NewService(store Store, copilot ProposalCopilot, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{
		store:      store,
		connectors: make(map[string]Connector),
		copilot:    copilot,
		log:        log,
		lastRun:    make(map[uuid.UUID]time.Time),
	}
}

// AddConnector registers an external provider.
func (s *Service) AddConnector(c Connector) {
	s.connectors[c.Name()] = c
}

// Providers lists registered provider names, sorted.
func (s *Service) Providers() []string {
	out := make([]string, 0, len(s.connectors))
	for name := range s.connectors {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// RecordSignals stores manually observed signals for a pathway after
// validating them.
func (s *Service) RecordSignals(ctx context.Context, pathwayID uuid.UUID, inputs []db.MarketSignalInput) (int, error) {
	if len(inputs) == 0 {
		return 0, fmt.Errorf("no signals provided: %w", apperrors.ErrValidation)
	}
	pathway, err := s.store.GetPathway(ctx, pathwayID)
	if err != nil {
		return 0, err
	}
	if pathway == nil {
		return 0, fmt.Errorf("pathway %s: %w", pathwayID, apperrors.ErrNotFound)
	}

	cleaned := make([]db.MarketSignalInput, 0, len(inputs))
	for _, in := range inputs {
		skill := skills.Normalize(in.Skill)
		roleFamily := strings.TrimSpace(in.RoleFamily)
		if skill == "" && roleFamily == "" {
			return 0, fmt.Errorf("signal needs a skill or a role family: %w", apperrors.ErrValidation)
		}
		if in.Frequency < 0 || in.Frequency > 1 {
			return 0, fmt.Errorf("signal frequency must be in [0,1], got %v: %w", in.Frequency, apperrors.ErrValidation)
		}
		if in.Source == "" {
			in.Source = "manual"
		}
		if in.ObservedAt.IsZero() {
			in.ObservedAt = time.Now().UTC()
		}
		in.Skill = skill
		in.RoleFamily = roleFamily
		cleaned = append(cleaned, in)
	}
	return s.store.InsertSignals(ctx, pathwayID, cleaned)
}

// IngestResult reports one external ingestion run.
type IngestResult struct {
	PathwayID       uuid.UUID `json:"pathway_id"`
	SignalsInserted int       `json:"signals_inserted"`
	Providers       []string  `json:"providers"`
	Degraded        []string  `json:"degraded,omitempty"`
}

// IngestExternal pulls postings from the named providers (all registered
// ones when empty), converts them to frequency signals, and stores them.
// Provider failures degrade the result rather than fail it; only a fully
// failed run returns ErrExternalUnavailable.
func (s *Service) IngestExternal(ctx context.Context, pathwayID uuid.UUID, providers []string) (*IngestResult, error) {
	pathway, err := s.store.GetPathway(ctx, pathwayID)
	if err != nil {
		return nil, err
	}
	if pathway == nil {
		return nil, fmt.Errorf("pathway %s: %w", pathwayID, apperrors.ErrNotFound)
	}

	if len(providers) == 0 {
		providers = s.Providers()
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("no providers registered: %w", apperrors.ErrExternalUnavailable)
	}

	vocabulary, err := s.vocabulary(ctx, pathwayID)
	if err != nil {
		return nil, err
	}

	type batch struct {
		provider string
		postings []string
	}
	var mu sync.Mutex
	var batches []batch
	var degraded []string

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range providers {
		connector, ok := s.connectors[name]
		if !ok {
			return nil, fmt.Errorf("unknown provider %q: %w", name, apperrors.ErrValidation)
		}
		g.Go(func() error {
			postings, ferr := connector.FetchPostings(gctx, pathway.Name)
			mu.Lock()
			defer mu.Unlock()
			if ferr != nil {
				s.log.Warn("market provider degraded", "provider", connector.Name(), "error", ferr)
				degraded = append(degraded, connector.Name())
				return nil // partial results beat none
			}
			batches = append(batches, batch{provider: connector.Name(), postings: postings})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &IngestResult{PathwayID: pathwayID, Providers: providers, Degraded: degraded}
	if len(batches) == 0 {
		return result, fmt.Errorf("all providers failed: %w", apperrors.ErrExternalUnavailable)
	}

	now := time.Now().UTC()
	for _, b := range batches {
		mentions := skills.CountMentions(b.postings, vocabulary)
		if len(mentions) > topSignalsPerBatch {
			mentions = mentions[:topSignalsPerBatch]
		}
		sampled := len(b.postings)
		inputs := make([]db.MarketSignalInput, 0, len(mentions))
		for _, m := range mentions {
			inputs = append(inputs, db.MarketSignalInput{
				Skill:       m.Skill,
				Source:      b.provider,
				Frequency:   m.Frequency,
				ObservedAt:  now,
				SourceCount: &sampled,
			})
		}
		inserted, ierr := s.store.InsertSignals(ctx, pathwayID, inputs)
		if ierr != nil {
			return result, ierr
		}
		result.SignalsInserted += inserted

		if _, aerr := s.store.RecordRawIngestion(ctx, b.provider, "", db.JSONMap{
			"pathway_id": pathwayID.String(),
			"postings":   len(b.postings),
			"signals":    inserted,
			"fetched_at": now.Format(time.RFC3339),
		}); aerr != nil {
			s.log.Warn("failed to record raw ingestion", "provider", b.provider, "error", aerr)
		}
	}

	sort.Strings(result.Degraded)
	return result, nil
}

// vocabulary builds the skill terms to scan postings for: the registered
// skill catalog plus the pathway's published checklist labels.
func (s *Service) vocabulary(ctx context.Context, pathwayID uuid.UUID) ([]string, error) {
	catalog, err := s.store.ListSkills(ctx)
	if err != nil {
		return nil, err
	}
	var vocab []string
	for _, skill := range catalog {
		vocab = append(vocab, skill.Name)
	}

	published, err := s.store.PublishedVersion(ctx, pathwayID)
	if err != nil {
		return nil, err
	}
	if published != nil {
		items, err := s.store.ListItems(ctx, published.ID)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			vocab = append(vocab, item.Label)
		}
	}

	if len(vocab) == 0 {
		vocab = baselineVocabulary
	}
	return vocab, nil
}

// baselineVocabulary keeps ingestion useful before any skills or
// checklists exist.
var baselineVocabulary = []string{
	"python", "go", "java", "javascript", "typescript", "rust", "sql",
	"postgresql", "mysql", "mongodb", "redis", "kafka", "aws", "gcp",
	"azure", "docker", "kubernetes", "terraform", "linux", "git", "rest",
	"graphql", "react", "node.js", "machine learning", "deep learning",
	"pytorch", "tensorflow", "spark", "airflow", "ci/cd", "grpc",
}
