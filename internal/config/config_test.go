package config

import (
	"os"
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("expected default addr, got %q", cfg.HTTPAddr)
	}
	if cfg.BaseCurrency != "GHS" {
		t.Fatalf("expected GHS, got %q", cfg.BaseCurrency)
	}
	if cfg.PaymentWindow != 15*time.Minute {
		t.Fatalf("unexpected payment window %v", cfg.PaymentWindow)
	}
	if cfg.DBConnString != "" {
		t.Fatalf("expected no default DSN, got %q", cfg.DBConnString)
	}
}

func TestFromEnvBaseCurrency(t *testing.T) {
	cases := []struct {
		value   string
		wantErr bool
	}{
		{"ghs", false},
		{"GHS", false},
		{"USD", true},
	}
	for _, tc := range cases {
		t.Run(tc.value, func(t *testing.T) {
			chdir(t, t.TempDir())
			t.Setenv("BASE_CURRENCY", tc.value)
			cfg, err := FromEnv()
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tc.value)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.BaseCurrency != "GHS" {
				t.Fatalf("expected GHS, got %q", cfg.BaseCurrency)
			}
		})
	}
}

func TestFromEnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("TAX_RATE", "0.125")
	t.Setenv("BACKEND_URL", "http://backend/api/")
	t.Setenv("BACKEND_TIMEOUT_SECONDS", "3")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("MIDTRANS_PRODUCTION", "true")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPAddr != ":9090" || cfg.TaxRate != 0.125 {
		t.Fatalf("unexpected cfg %+v", cfg)
	}
	if cfg.BackendURL != "http://backend/api" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.BackendURL)
	}
	if cfg.BackendTimeout != 3*time.Second {
		t.Fatalf("unexpected timeout %v", cfg.BackendTimeout)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins %v", cfg.AllowedOrigins)
	}
	if !cfg.MidtransProduction {
		t.Fatalf("expected production flag")
	}
}

func TestFromEnvInvalidNumbersFallBack(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("SHUTDOWN_TIMEOUT_SECONDS", "soon")
	t.Setenv("DELIVERY_FEE", "-4")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Fatalf("expected default shutdown timeout, got %v", cfg.ShutdownTimeout)
	}
	if cfg.DeliveryFee != 0 {
		t.Fatalf("expected default delivery fee, got %v", cfg.DeliveryFee)
	}
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (stand-in for testing.T.Chdir on older toolchains).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("restore wd: %v", err)
		}
	})
}
