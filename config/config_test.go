package config

import "testing"

// --------------------------------------------------------------------------------------------- //

func TestParseValidOptions(t *testing.T) {
	opts, err := Parse([]string{"--port=9000", "--Dc=4", "--file=random"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if opts.Int("port", 0) != 9000 {
		t.Fatalf("got port %d", opts.Int("port", 0))
	}

	if opts.Int("Dc", 1) != 4 {
		t.Fatalf("got Dc %d", opts.Int("Dc", 1))
	}

	if opts.String("file", "") != "random" {
		t.Fatalf("got file %q", opts.String("file", ""))
	}
}

// --------------------------------------------------------------------------------------------- //

func TestParseRejectsMalformedTokens(t *testing.T) {
	if _, err := Parse([]string{"port=9000"}); err == nil {
		t.Fatalf("expected error for missing --")
	}

	if _, err := Parse([]string{"--port"}); err == nil {
		t.Fatalf("expected error for missing =value")
	}
}

// --------------------------------------------------------------------------------------------- //

func TestServerFromOptionsDefaults(t *testing.T) {
	cfg := ServerFromOptions(Options{"port": "9000"}, "/data")

	if cfg.Cs != 5 || cfg.P != 0.2 || cfg.T != 10 || cfg.B != 100 {
		t.Fatalf("got %+v", cfg)
	}

	if cfg.FilesDir != "/data" {
		t.Fatalf("got filesDir %q", cfg.FilesDir)
	}
}

// --------------------------------------------------------------------------------------------- //

func TestClientFromOptionsDefaults(t *testing.T) {
	cfg := ClientFromOptions(Options{"port": "9001"}, "/data")

	if cfg.ServerHost != "localhost" || cfg.ServerPort != 12345 || cfg.File != "random" {
		t.Fatalf("got %+v", cfg)
	}

	if cfg.Dc != 1 || cfg.B != 100 || cfg.Pc != 0.2 {
		t.Fatalf("got %+v", cfg)
	}

	if cfg.Host != "localhost" {
		t.Fatalf("got host %q, want localhost", cfg.Host)
	}
}

// --------------------------------------------------------------------------------------------- //
