package verification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ashirimi1019/market-ready/internal/db"
	"github.com/ashirimi1019/market-ready/internal/evidence"
	"github.com/ashirimi1019/market-ready/internal/llm"
	intschemas "github.com/ashirimi1019/market-ready/internal/schemas"
	"github.com/ashirimi1019/market-ready/schemas"
)

// verdictSchema drives the adjudication prompt.
var verdictSchema = llm.ExtractionSchema{
	Name: "ProofVerdict",
	Description: "You are an evidence adjudicator for a career readiness platform. " +
		"A learner claims a checklist requirement is met and has provided evidence. " +
		"Judge ONLY what the evidence shows. A certificate must name the holder and the credential. " +
		"A project must plausibly demonstrate the required skill. " +
		"Do not give credit for intentions or course enrollment without completion.",
	Fields: []llm.SchemaField{
		{Name: "meets_requirement", Type: "bool", Description: "true if the evidence satisfies the requirement", Required: true},
		{Name: "confidence", Type: "float", Description: "confidence in the verdict, 0.0 to 1.0", Required: true},
		{Name: "issues", Type: "[]string", Description: "problems found with the evidence"},
		{Name: "decision", Type: "string", Description: "one of: verified, rejected, needs_more_evidence", Required: true},
		{Name: "note", Type: "string", Description: "one sentence for the learner explaining the verdict"},
	},
}

// GeminiVerifier adjudicates document evidence with Gemini. Evidence URLs
// are fetched and excerpted before prompting so the model judges content,
// not a bare link.
type GeminiVerifier struct {
	client  llm.Client
	fetcher *evidence.Fetcher
}

// NewGeminiVerifier builds a GeminiVerifier. fetcher may be nil to skip
// URL excerpting.
func NewGeminiVerifier(client llm.Client, fetcher *evidence.Fetcher) *GeminiVerifier {
	return &GeminiVerifier{client: client, fetcher: fetcher}
}

// VerifyDocument implements DocumentVerifier.
func (g *GeminiVerifier) VerifyDocument(ctx context.Context, req DocumentRequest) (*db.Verdict, error) {
	excerpt := req.Excerpt
	if excerpt == "" && req.URL != "" && g.fetcher != nil {
		text, err := g.fetcher.Excerpt(ctx, req.URL)
		if err == nil {
			excerpt = text
		}
		// A dead link is itself evidence; the model sees the fetch failure.
		if err != nil {
			excerpt = fmt.Sprintf("(evidence URL could not be fetched: %v)", err)
		}
	}

	input := fmt.Sprintf(
		"Requirement: %s\nWhy it matters: %s\nProof type: %s\nEvidence URL: %s\n\nEvidence content:\n%s",
		req.Requirement, req.Rationale, req.ProofType, req.URL, excerpt,
	)
	prompt := llm.BuildExtractionPrompt(verdictSchema, input)

	raw, err := g.client.GenerateJSON(ctx, prompt, llm.TierStandard)
	if err != nil {
		return nil, fmt.Errorf("adjudicator call failed: %w", err)
	}

	cleaned := llm.CleanJSONBlock(raw)
	if err := intschemas.ValidateJSONString(schemas.ProofVerdict, cleaned); err != nil {
		return nil, fmt.Errorf("adjudicator returned malformed verdict: %w", err)
	}

	var verdict db.Verdict
	if err := json.Unmarshal([]byte(cleaned), &verdict); err != nil {
		return nil, fmt.Errorf("failed to decode verdict: %w", err)
	}
	return &verdict, nil
}
