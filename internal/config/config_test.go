package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.Scoring.WeightGrammar != 3 {
		t.Fatalf("expected default grammar weight 3, got %v", cfg.Scoring.WeightGrammar)
	}
	if len(cfg.Scoring.FillerWords) == 0 {
		t.Fatal("expected default filler words")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ORATIA_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("ORATIA_BUS_USERNAME", "alice")
	t.Setenv("ORATIA_BUS_PASSWORD", "secret")
	t.Setenv("ORATIA_STT_MODE", "exec")
	t.Setenv("ORATIA_STT_COMMAND", "whisper-cli --json")
	t.Setenv("ORATIA_GRAMMAR_MODE", "languagetool")
	t.Setenv("ORATIA_GRAMMAR_ENDPOINT", "http://lt:8010")
	t.Setenv("ORATIA_SCORING_WEIGHT_TYPOS", "4.5")
	t.Setenv("ORATIA_REPORT_STORE_PATH", "./tmp.db")
	t.Setenv("ORATIA_REPORT_STORE_RETENTION_MODE", "persistent")
	t.Setenv("ORATIA_REPORT_STORE_RETENTION_DAYS", "7")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if cfg.STT.Mode != "exec" || cfg.STT.Command != "whisper-cli --json" {
		t.Fatalf("expected stt override, got %+v", cfg.STT)
	}
	if cfg.Grammar.Mode != "languagetool" || cfg.Grammar.Endpoint != "http://lt:8010" {
		t.Fatalf("expected grammar override, got %+v", cfg.Grammar)
	}
	if cfg.Scoring.WeightTypos != 4.5 {
		t.Fatalf("expected typos weight override, got %v", cfg.Scoring.WeightTypos)
	}
	if cfg.ReportStore.Path != "./tmp.db" {
		t.Fatalf("expected report store path override")
	}
	if cfg.ReportStore.RetentionMode != "persistent" {
		t.Fatalf("expected report store retention mode override")
	}
	if cfg.ReportStore.RetentionDays != 7 {
		t.Fatalf("expected report store retention days override")
	}
}

func TestValidateRejectsBadModes(t *testing.T) {
	t.Setenv("ORATIA_STT_MODE", "cloudX")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for unknown stt mode")
	}
}

func TestValidateExecNeedsCommand(t *testing.T) {
	t.Setenv("ORATIA_STT_MODE", "exec")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error when exec mode has no command")
	}
}
