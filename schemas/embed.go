// Package schemas embeds the JSON Schemas that LLM outputs are validated
// against before anything downstream trusts them.
package schemas

import _ "embed"

//go:embed proof_verdict.schema.json
var ProofVerdict string

//go:embed market_proposal.schema.json
var MarketProposal string

//go:embed mission_plan.schema.json
var MissionPlan string
