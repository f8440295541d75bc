package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	for _, k := range []string{"SERVER_PORT", "RATE_LIMIT_RPS", "RECONCILE_BATCH_SIZE", "SUGGESTION_DAILY_LIMIT", "VISIBILITY_THRESHOLD"} {
		t.Setenv(k, "")
	}

	if got := ServerAddr(); got != ":8080" {
		t.Errorf("ServerAddr() = %q, want :8080", got)
	}
	if got := RateLimitRPS(); got != 100 {
		t.Errorf("RateLimitRPS() = %v, want 100", got)
	}
	if got := ReconcileBatchSize(); got != 50 {
		t.Errorf("ReconcileBatchSize() = %d, want 50", got)
	}
	if got := SuggestionDailyLimit(); got != 2 {
		t.Errorf("SuggestionDailyLimit() = %d, want 2", got)
	}
	if got := VisibilityThreshold(); got != 0.45 {
		t.Errorf("VisibilityThreshold() = %v, want 0.45", got)
	}
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("RECONCILE_BATCH_SIZE", "-3")
	t.Setenv("VISIBILITY_THRESHOLD", "1.5")
	t.Setenv("RATE_LIMIT_BURST", "many")

	if got := ReconcileBatchSize(); got != 50 {
		t.Errorf("ReconcileBatchSize() = %d, want 50", got)
	}
	if got := VisibilityThreshold(); got != 0.45 {
		t.Errorf("VisibilityThreshold() = %v, want 0.45", got)
	}
	if got := RateLimitBurst(); got != 20 {
		t.Errorf("RateLimitBurst() = %d, want 20", got)
	}
}

func TestLoad_EnvAndSecret(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	if err := os.WriteFile(envFile, []byte("SUGGESTION_DAILY_LIMIT=5\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(envFile+".secret", []byte("API_KEY=s3cret\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("SELFGRAPH_ENV", envFile)
	// godotenv never overrides variables that are already set
	t.Setenv("SUGGESTION_DAILY_LIMIT", "")
	t.Setenv("API_KEY", "")
	os.Unsetenv("SUGGESTION_DAILY_LIMIT")
	os.Unsetenv("API_KEY")

	if err := Load(); err != nil {
		t.Fatal(err)
	}
	if got := SuggestionDailyLimit(); got != 5 {
		t.Errorf("SuggestionDailyLimit() = %d, want 5", got)
	}
	if got := APIKey(); got != "s3cret" {
		t.Errorf("APIKey() = %q, want s3cret", got)
	}
}

func TestTrustProxy(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"", false},
		{"false", false},
		{"yes", false},
		{"true", true},
		{"1", true},
	}
	for _, tt := range tests {
		t.Setenv("TRUST_PROXY", tt.value)
		if got := TrustProxy(); got != tt.want {
			t.Errorf("TrustProxy() with %q = %v, want %v", tt.value, got, tt.want)
		}
	}
}
