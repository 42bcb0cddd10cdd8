package main

import (
	"testing"
	"time"
)

func TestEnvOr(t *testing.T) {
	t.Setenv("DAEDALUS_TEST_SET", "value")

	if got := envOr("DAEDALUS_TEST_SET", "fallback"); got != "value" {
		t.Errorf("envOr = %q, want %q", got, "value")
	}
	if got := envOr("DAEDALUS_TEST_UNSET", "fallback"); got != "fallback" {
		t.Errorf("envOr = %q, want %q", got, "fallback")
	}
}

func TestEnvInt(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  int
	}{
		{"valid", "7", 7},
		{"zero falls back", "0", 3},
		{"negative falls back", "-2", 3},
		{"garbage falls back", "seven", 3},
		{"empty falls back", "", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DAEDALUS_TEST_INT", tt.value)
			if got := envInt("DAEDALUS_TEST_INT", 3); got != tt.want {
				t.Errorf("envInt = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestEnvDuration(t *testing.T) {
	t.Setenv("DAEDALUS_TEST_BUDGET", "90")
	if got := envDuration("DAEDALUS_TEST_BUDGET"); got != 90*time.Second {
		t.Errorf("envDuration = %v, want 90s", got)
	}

	t.Setenv("DAEDALUS_TEST_BUDGET", "bogus")
	if got := envDuration("DAEDALUS_TEST_BUDGET"); got != 0 {
		t.Errorf("envDuration = %v, want 0", got)
	}
}
