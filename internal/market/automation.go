package market

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ashirimi1019/market-ready/internal/db"
)

// automationCooldown blocks back-to-back synthesis for the same pathway.
const automationCooldown = 24 * time.Hour

// minSignalsForProposal is the minimum recent signal count before
// automation bothers the admins with a proposal.
const minSignalsForProposal = 5

// AutomationOptions tunes one automation cycle.
type AutomationOptions struct {
	Providers []string `json:"providers,omitempty"`
	DryRun    bool     `json:"dry_run"`
}

// PathwayRun reports automation's work on one pathway.
type PathwayRun struct {
	PathwayID       uuid.UUID  `json:"pathway_id"`
	PathwayName     string     `json:"pathway_name"`
	SignalsInserted int        `json:"signals_inserted"`
	Degraded        []string   `json:"degraded,omitempty"`
	ProposalID      *uuid.UUID `json:"proposal_id,omitempty"`
	Skipped         string     `json:"skipped,omitempty"` // reason, empty if processed
}

// AutomationReport summarizes one cycle.
type AutomationReport struct {
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	DryRun     bool         `json:"dry_run"`
	Pathways   []PathwayRun `json:"pathways"`
}

// RunAutomation ingests signals and synthesizes proposals for every
// active pathway. Per-pathway failures are recorded and do not stop the
// cycle.
func (s *Service) RunAutomation(ctx context.Context, opts AutomationOptions) (*AutomationReport, error) {
	pathways, err := s.store.ListPathways(ctx, true)
	if err != nil {
		return nil, err
	}

	report := &AutomationReport{StartedAt: time.Now().UTC(), DryRun: opts.DryRun}
	for _, pathway := range pathways {
		run := PathwayRun{PathwayID: pathway.ID, PathwayName: pathway.Name}

		if !s.cooldownElapsed(ctx, pathway.ID) {
			run.Skipped = "cooldown"
			report.Pathways = append(report.Pathways, run)
			continue
		}

		ingest, ierr := s.IngestExternal(ctx, pathway.ID, opts.Providers)
		if ingest != nil {
			run.SignalsInserted = ingest.SignalsInserted
			run.Degraded = ingest.Degraded
		}
		if ierr != nil {
			run.Skipped = "ingest failed: " + ierr.Error()
			report.Pathways = append(report.Pathways, run)
			continue
		}

		signals, serr := s.store.ListSignals(ctx, pathway.ID, time.Now().UTC().Add(-signalWindow))
		if serr != nil {
			run.Skipped = "signal read failed: " + serr.Error()
			report.Pathways = append(report.Pathways, run)
			continue
		}
		if len(signals) < minSignalsForProposal {
			run.Skipped = "too few signals"
			report.Pathways = append(report.Pathways, run)
			continue
		}

		if !opts.DryRun {
			proposal, perr := s.GenerateProposal(ctx, pathway.ID, "market-automation")
			if perr != nil {
				run.Skipped = "synthesis failed: " + perr.Error()
			} else if proposal != nil {
				run.ProposalID = &proposal.ID
			}
			s.markRun(ctx, pathway.ID)
		}
		report.Pathways = append(report.Pathways, run)
	}

	report.FinishedAt = time.Now().UTC()
	return report, nil
}

// AutomationStatus reports provider registration and last-run times.
type AutomationStatus struct {
	Providers []string             `json:"providers"`
	LastRuns  map[string]time.Time `json:"last_runs"` // pathway ID -> time
}

// Status returns the current automation state.
func (s *Service) Status() AutomationStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	last := make(map[string]time.Time, len(s.lastRun))
	for id, t := range s.lastRun {
		last[id.String()] = t
	}
	return AutomationStatus{Providers: s.Providers(), LastRuns: last}
}

// cooldownElapsed checks the in-memory last-run cache first, then the
// ingestion audit trail, so the cooldown holds across restarts.
func (s *Service) cooldownElapsed(ctx context.Context, pathwayID uuid.UUID) bool {
	s.mu.Lock()
	last, ok := s.lastRun[pathwayID]
	s.mu.Unlock()
	if ok {
		return time.Since(last) >= automationCooldown
	}

	persisted, err := s.store.LastAutomationRun(ctx, pathwayID)
	if err != nil {
		s.log.Warn("failed to read last automation run", "pathway_id", pathwayID, "error", err)
		return true
	}
	if persisted == nil {
		return true
	}
	s.mu.Lock()
	s.lastRun[pathwayID] = *persisted
	s.mu.Unlock()
	return time.Since(*persisted) >= automationCooldown
}

// markRun records the run both in memory and in the ingestion audit
// trail, which LastAutomationRun reads back after a restart.
func (s *Service) markRun(ctx context.Context, pathwayID uuid.UUID) {
	now := time.Now().UTC()
	s.mu.Lock()
	s.lastRun[pathwayID] = now
	s.mu.Unlock()

	if _, err := s.store.RecordRawIngestion(ctx, "automation", "", db.JSONMap{
		"pathway_id": pathwayID.String(),
		"ran_at":     now.Format(time.RFC3339),
	}); err != nil {
		s.log.Warn("failed to persist automation run", "pathway_id", pathwayID, "error", err)
	}
}
