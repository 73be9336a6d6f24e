package ratelimit

import (
	"testing"
	"time"
)

func TestMatchEndpoint_HealthUnlimited(t *testing.T) {
	config := MatchEndpoint("/health", "GET", DefaultEndpointConfigs())
	if config == nil {
		t.Fatal("Expected health check to match")
	}
	if config.Limit != 0 {
		t.Errorf("Expected unlimited health check, got limit %d", config.Limit)
	}
}

func TestMatchEndpoint_ExactMatch(t *testing.T) {
	config := MatchEndpoint("/auth/login", "POST", DefaultEndpointConfigs())
	if config == nil {
		t.Fatal("Expected /auth/login POST to match")
	}
	if config.Window != time.Minute {
		t.Errorf("Expected one minute window, got %v", config.Window)
	}
}

func TestMatchEndpoint_PrefixMatch(t *testing.T) {
	configs := DefaultEndpointConfigs()

	// AI endpoints share one prefix config.
	for _, path := range []string{
		"/user/ai/orchestrator",
		"/user/ai/proof-checker",
		"/user/ai/market-stress-test",
	} {
		config := MatchEndpoint(path, "POST", configs)
		if config == nil {
			t.Fatalf("Expected %s POST to match", path)
		}
		if config.Path != "/user/ai/" {
			t.Errorf("Expected %s to match /user/ai/ prefix, got %s", path, config.Path)
		}
	}
}

func TestMatchEndpoint_NoMatch(t *testing.T) {
	config := MatchEndpoint("/pathways", "GET", DefaultEndpointConfigs())
	if config != nil {
		t.Errorf("Expected read endpoint to fall through to default, matched %s", config.Path)
	}
}

func TestMatchEndpoint_MethodMustMatch(t *testing.T) {
	config := MatchEndpoint("/auth/login", "GET", DefaultEndpointConfigs())
	if config != nil {
		t.Errorf("Expected GET /auth/login not to match POST config, matched %s", config.Path)
	}
}
