package config

import (
	"os"
	"path/filepath"
	"testing"

	"parkeval-service/internal/evaluation"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Fatalf("unexpected addr %s", cfg.HTTP.Addr)
	}
	if cfg.Review.ConfThreshold != 0.3 || !cfg.Review.ExcludeMoving {
		t.Fatalf("unexpected review defaults %+v", cfg.Review)
	}
	opts, err := cfg.Review.EvalOptions()
	if err != nil {
		t.Fatal(err)
	}
	if opts.ResendPolicy != evaluation.ResendGlobal {
		t.Fatalf("expected global resend policy, got %s", opts.ResendPolicy)
	}
	if cfg.Review.LoaderOptions().ROI != nil {
		t.Fatal("ROI must be disabled by default")
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parkeval.yaml")
	body := `
review:
  resend_policy: per_lot
  roi_enabled: true
  roi:
    xmin: 10
    ymin: 20
    xmax: 300
    ymax: 400
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PARKEVAL_REVIEW_CONF_THRESHOLD", "0.5")
	t.Setenv("PARKEVAL_HTTP_ADDR", ":9000")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTP.Addr != ":9000" || cfg.Review.ConfThreshold != 0.5 {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("file value not applied: %s", cfg.Log.Level)
	}
	opts := cfg.Review.LoaderOptions()
	if opts.ROI == nil || opts.ROI.XMax != 300 || opts.ROI.YMin != 20 {
		t.Fatalf("unexpected roi %+v", opts.ROI)
	}
	eo, err := cfg.Review.EvalOptions()
	if err != nil || eo.ResendPolicy != evaluation.ResendPerLot {
		t.Fatalf("unexpected eval options %+v %v", eo, err)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("PARKEVAL_REVIEW_RESEND_POLICY", "sometimes")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for unknown resend policy")
	}
}
