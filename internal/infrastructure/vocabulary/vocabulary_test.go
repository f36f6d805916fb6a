package vocabulary

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultTranslatesKnownLabels(t *testing.T) {
	table, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	cases := map[string]string{
		"Suon":   "Sườn non",
		"tofu":   "Đậu hũ",
		" TOFU ": "Đậu hũ",
	}
	for label, want := range cases {
		got, ok := table.Translate(label)
		if !ok || got != want {
			t.Fatalf("Translate(%q) = %q, %v; want %q", label, got, ok, want)
		}
	}
	if _, ok := table.Translate("Pizza"); ok {
		t.Fatalf("unknown label must not translate")
	}
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.yaml")
	content := "labels:\n  Tofu: Đậu phụ sốt cà\n  Banh: Bánh cuốn\n  Empty: \"\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	table, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got, _ := table.Translate("Tofu"); got != "Đậu phụ sốt cà" {
		t.Fatalf("override not applied, got %q", got)
	}
	if got, _ := table.Translate("banh"); got != "Bánh cuốn" {
		t.Fatalf("new label missing, got %q", got)
	}
	if got, _ := table.Translate("Suon"); got != "Sườn non" {
		t.Fatalf("built-in label lost, got %q", got)
	}
	if _, ok := table.Translate("Empty"); ok {
		t.Fatalf("empty name must not translate")
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("labels: [unclosed"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected read error")
	}
}
