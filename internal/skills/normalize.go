// Package skills provides skill-name normalization and alias matching used
// by market ingestion and repository scanning.
package skills

import (
	"regexp"
	"strings"
)

// aliases maps common variants to canonical skill names. Lookups are
// case-insensitive.
var aliases = map[string]string{
	"golang":                "go",
	"js":                    "javascript",
	"ts":                    "typescript",
	"py":                    "python",
	"python3":               "python",
	"node":                  "node.js",
	"nodejs":                "node.js",
	"node.js":               "node.js",
	"reactjs":               "react",
	"react.js":              "react",
	"vuejs":                 "vue",
	"vue.js":                "vue",
	"k8s":                   "kubernetes",
	"postgres":              "postgresql",
	"psql":                  "postgresql",
	"tf":                    "terraform",
	"amazon web services":   "aws",
	"google cloud":          "gcp",
	"google cloud platform": "gcp",
	"ms azure":              "azure",
	"microsoft azure":       "azure",
	"ci/cd":                 "ci/cd",
	"cicd":                  "ci/cd",
	"restful":               "rest",
	"rest apis":             "rest",
	"rest api":              "rest",
	"ml":                    "machine learning",
	"dl":                    "deep learning",
	"tensorflow2":           "tensorflow",
	"pytorch":               "pytorch",
	"sklearn":               "scikit-learn",
	"scikit learn":          "scikit-learn",
	"elastic":               "elasticsearch",
	"es":                    "elasticsearch",
	"mongo":                 "mongodb",
	"gh actions":            "github actions",
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// Normalize lowercases, collapses whitespace, and resolves aliases so that
// "GoLang", "golang", and "go" all count as the same skill.
func Normalize(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = whitespaceRe.ReplaceAllString(s, " ")
	s = strings.Trim(s, ".,;:()[]")
	if canonical, ok := aliases[s]; ok {
		return canonical
	}
	return s
}

// Same reports whether two skill names refer to the same canonical skill.
func Same(a, b string) bool {
	return Normalize(a) == Normalize(b) && Normalize(a) != ""
}

// MatchAny reports whether needle matches any of the candidates after
// normalization.
func MatchAny(needle string, candidates []string) bool {
	n := Normalize(needle)
	if n == "" {
		return false
	}
	for _, c := range candidates {
		if Normalize(c) == n {
			return true
		}
	}
	return false
}
