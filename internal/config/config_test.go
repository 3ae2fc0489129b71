package config

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.InitialMessageBuffer != 10*time.Minute {
		t.Errorf("InitialMessageBuffer = %v, want 10m", cfg.InitialMessageBuffer)
	}
	if cfg.ReplyBuffer != 2*time.Minute {
		t.Errorf("ReplyBuffer = %v, want 2m", cfg.ReplyBuffer)
	}
	if !cfg.AllowNullTimezone {
		t.Error("AllowNullTimezone should default to true")
	}
	if cfg.DueByGrace != 24*time.Hour {
		t.Errorf("DueByGrace = %v, want 24h", cfg.DueByGrace)
	}
	if cfg.ClaimMaxAttempts != 4 {
		t.Errorf("ClaimMaxAttempts = %d, want 4", cfg.ClaimMaxAttempts)
	}
}

func TestLoadFromEnv(t *testing.T) {
	id := uuid.New()
	t.Setenv("REPLY_BUFFER_MINUTES", "5")
	t.Setenv("ALLOW_NULL_TIMEZONE", "false")
	t.Setenv("CLAIM_TIMEOUT_MS", "250")
	t.Setenv("AUTOSEND_USER_ID", id.String())

	cfg := Load()

	if cfg.ReplyBuffer != 5*time.Minute {
		t.Errorf("ReplyBuffer = %v, want 5m", cfg.ReplyBuffer)
	}
	if cfg.AllowNullTimezone {
		t.Error("AllowNullTimezone should be false")
	}
	if cfg.ClaimTimeout != 250*time.Millisecond {
		t.Errorf("ClaimTimeout = %v, want 250ms", cfg.ClaimTimeout)
	}
	if cfg.AutosendUserID != id {
		t.Errorf("AutosendUserID = %v, want %v", cfg.AutosendUserID, id)
	}
}

func TestMalformedValuesFallBack(t *testing.T) {
	t.Setenv("CLAIM_MAX_ATTEMPTS", "lots")
	t.Setenv("ALLOW_NULL_TIMEZONE", "maybe")
	t.Setenv("AUTOSEND_USER_ID", "not-a-uuid")

	cfg := Load()

	if cfg.ClaimMaxAttempts != 4 {
		t.Errorf("ClaimMaxAttempts = %d, want fallback 4", cfg.ClaimMaxAttempts)
	}
	if !cfg.AllowNullTimezone {
		t.Error("AllowNullTimezone should fall back to true")
	}
	if cfg.AutosendUserID != uuid.Nil {
		t.Errorf("AutosendUserID = %v, want nil uuid", cfg.AutosendUserID)
	}
}

func TestValidateClampsAttempts(t *testing.T) {
	cfg := Load()
	cfg.ClaimMaxAttempts = 0
	cfg.ClaimCandidatePage = 0
	cfg.Validate(zap.NewNop())

	if cfg.ClaimMaxAttempts != 1 {
		t.Errorf("ClaimMaxAttempts = %d, want 1", cfg.ClaimMaxAttempts)
	}
	if cfg.ClaimCandidatePage != 200 {
		t.Errorf("ClaimCandidatePage = %d, want 200", cfg.ClaimCandidatePage)
	}
}

func TestDerivedOptions(t *testing.T) {
	t.Setenv("CLAIM_MAX_ATTEMPTS", "6")
	t.Setenv("CLAIM_BACKOFF_INITIAL_MS", "20")
	t.Setenv("INITIAL_MESSAGE_BUFFER_MINUTES", "15")

	cfg := Load()

	b := cfg.Backoff()
	if b.MaxAttempts != 6 || b.InitialDelay != 20*time.Millisecond {
		t.Errorf("Backoff = %+v, want 6 attempts starting at 20ms", b)
	}
	if b.MaxDelay != time.Second {
		t.Errorf("Backoff.MaxDelay = %v, want 1s", b.MaxDelay)
	}

	e := cfg.Eligibility()
	if e.InitialMessageBuffer != 15*time.Minute || e.ReplyBuffer != 2*time.Minute || !e.AllowNullTimezone {
		t.Errorf("Eligibility = %+v", e)
	}
}
