package config

import (
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DISCORD_TOKEN", "token")
	t.Setenv("DISCORD_APP_ID", "app")
	t.Setenv("DISCORD_GUILD_ID", "guild")
	t.Setenv("TICKET_PANEL_CHANNEL_ID", "panel")
	t.Setenv("SUPPORT_ROLE_ID", "support")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Tickets.ReasonTimeout != 60*time.Second {
		t.Errorf("ReasonTimeout = %v, want 60s", cfg.Tickets.ReasonTimeout)
	}
	if cfg.Tickets.DeleteDelay != 5*time.Second {
		t.Errorf("DeleteDelay = %v, want 5s", cfg.Tickets.DeleteDelay)
	}
	if cfg.Discord.SupportRoleID != "support" {
		t.Errorf("SupportRoleID = %q", cfg.Discord.SupportRoleID)
	}
	if cfg.Kafka.Enabled() {
		t.Error("kafka should be disabled without brokers")
	}
	if cfg.Ops.Enabled() {
		t.Error("ops API should be disabled without a port")
	}
	if cfg.Logger.Format != "json" || cfg.Logger.Development {
		t.Errorf("Logger = %+v, want json production logging", cfg.Logger)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	setRequired(t)
	t.Setenv("DISCORD_TOKEN", "")
	t.Setenv("SUPPORT_ROLE_ID", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing configuration")
	}
	for _, key := range []string{"DISCORD_TOKEN", "SUPPORT_ROLE_ID"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q does not name %s", err, key)
		}
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("TICKET_REASON_TIMEOUT", "30s")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("OPS_HTTP_PORT", "9090")
	t.Setenv("LOG_FORMAT", "console")
	t.Setenv("LOG_DEVELOPMENT", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Tickets.ReasonTimeout != 30*time.Second {
		t.Errorf("ReasonTimeout = %v", cfg.Tickets.ReasonTimeout)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("Brokers = %v", cfg.Kafka.Brokers)
	}
	if got := cfg.Ops.Addr(); got != "0.0.0.0:9090" {
		t.Errorf("Addr = %q", got)
	}
	if cfg.Logger.Format != "console" || !cfg.Logger.Development {
		t.Errorf("Logger = %+v", cfg.Logger)
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	setRequired(t)
	t.Setenv("TICKET_DELETE_DELAY", "soon")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestParseCategories(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		want    int
	}{
		{
			name: "valid",
			input: `
categories:
  - value: billing_questions
    label: Billing questions
    emoji: "💳"
    description: Invoices and payments.
  - value: bot_issues
    label: Bot issues
`,
			want: 2,
		},
		{name: "empty", input: "categories: []", wantErr: true},
		{name: "missing label", input: "categories:\n  - value: x\n", wantErr: true},
		{name: "duplicate", input: "categories:\n  - {value: a, label: A}\n  - {value: a, label: B}\n", wantErr: true},
		{name: "bad yaml", input: "categories: [", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCategories([]byte(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCategories: %v", err)
			}
			if len(got) != tt.want {
				t.Fatalf("got %d categories, want %d", len(got), tt.want)
			}
		})
	}
}

func TestLoadCategoriesDefault(t *testing.T) {
	got, err := LoadCategories("")
	if err != nil {
		t.Fatalf("LoadCategories: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d default categories, want 3", len(got))
	}
}
