package skills

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountMentionsFrequency(t *testing.T) {
	postings := []string{
		"Backend engineer with Go and PostgreSQL experience",
		"Go developer for gRPC services",
		"Frontend role, React and TypeScript",
		"Platform engineer: Go, Kubernetes, Terraform",
	}
	vocab := []string{"go", "postgresql", "react", "rust"}

	mentions := CountMentions(postings, vocab)

	require.Len(t, mentions, 3) // rust never appears
	assert.Equal(t, "go", mentions[0].Skill)
	assert.Equal(t, 3, mentions[0].Count)
	assert.InDelta(t, 0.75, mentions[0].Frequency, 1e-9)
}

func TestCountMentionsWordBoundaries(t *testing.T) {
	postings := []string{"We use Google Workspace and MongoDB"}

	mentions := CountMentions(postings, []string{"go", "mongodb"})

	require.Len(t, mentions, 1)
	assert.Equal(t, "mongodb", mentions[0].Skill)
}

func TestCountMentionsDedupesWithinPosting(t *testing.T) {
	postings := []string{"Go, Go, and more Go. Did we mention Go?"}

	mentions := CountMentions(postings, []string{"go"})

	require.Len(t, mentions, 1)
	assert.Equal(t, 1, mentions[0].Count)
	assert.InDelta(t, 1.0, mentions[0].Frequency, 1e-9)
}

func TestCountMentionsMatchesAliases(t *testing.T) {
	postings := []string{
		"Looking for a Golang engineer",
		"Postgres DBA wanted",
	}

	mentions := CountMentions(postings, []string{"go", "postgresql"})

	require.Len(t, mentions, 2)
	bySkill := map[string]int{}
	for _, m := range mentions {
		bySkill[m.Skill] = m.Count
	}
	assert.Equal(t, 1, bySkill["go"])
	assert.Equal(t, 1, bySkill["postgresql"])
}

func TestCountMentionsDeterministicOrder(t *testing.T) {
	postings := []string{"Go and Rust, side by side"}

	mentions := CountMentions(postings, []string{"rust", "go"})

	require.Len(t, mentions, 2)
	// Ties break alphabetically.
	assert.Equal(t, "go", mentions[0].Skill)
	assert.Equal(t, "rust", mentions[1].Skill)
}

func TestCountMentionsEmptyInputs(t *testing.T) {
	assert.Nil(t, CountMentions(nil, []string{"go"}))
	assert.Nil(t, CountMentions([]string{"Go engineer"}, nil))
}
