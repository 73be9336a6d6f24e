package skills

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"GoLang":                  "go",
		"  golang  ":              "go",
		"Go":                      "go",
		"Postgres":                "postgresql",
		"K8s":                     "kubernetes",
		"Node":                    "node.js",
		"REST APIs":               "rest",
		"Amazon   Web   Services": "aws",
		"(python)":                "python",
		"docker,":                 "docker",
		"":                        "",
		"   ":                     "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), "Normalize(%q)", in)
	}
}

func TestSame(t *testing.T) {
	assert.True(t, Same("GoLang", "go"))
	assert.True(t, Same("Postgres", "postgresql"))
	assert.False(t, Same("go", "rust"))
	assert.False(t, Same("", ""))
}

func TestMatchAny(t *testing.T) {
	candidates := []string{"Go", "PostgreSQL", "Docker"}
	assert.True(t, MatchAny("golang", candidates))
	assert.True(t, MatchAny("postgres", candidates))
	assert.False(t, MatchAny("rust", candidates))
	assert.False(t, MatchAny("", candidates))
}
