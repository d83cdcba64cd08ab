package catalog_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/medivox/internal/catalog"
)

func TestLoadFromReader_PreservesSourceOrder(t *testing.T) {
	t.Parallel()
	src := `{
		"Zyrtec":      ["Zyrtec 10mg Tablet"],
		"Amoxicillin": ["Amoxicillin 250mg Capsule", "Amoxicillin 500mg Capsule"],
		"Paracetamol": ["Paracetamol 500mg Tablet"]
	}`
	idx, err := catalog.LoadFromReader(strings.NewReader(src))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"Zyrtec", "Amoxicillin", "Paracetamol"}
	entries := idx.Entries()
	if len(entries) != len(want) {
		t.Fatalf("got %d entries, want %d", len(entries), len(want))
	}
	for i, name := range want {
		if entries[i].Name != name {
			t.Errorf("entries[%d].Name = %q, want %q", i, entries[i].Name, name)
		}
	}
}

func TestLoadFromReader_CaseFoldCollision(t *testing.T) {
	t.Parallel()
	src := `{
		"Paracetamol": ["Paracetamol 500mg Tablet"],
		"PARACETAMOL": ["Paracetamol 650mg Tablet"]
	}`
	_, err := catalog.LoadFromReader(strings.NewReader(src))
	if !errors.Is(err, catalog.ErrCorruptCatalog) {
		t.Fatalf("expected ErrCorruptCatalog for case-folded duplicate, got: %v", err)
	}
}

func TestLoadFromReader_ShapeViolations(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		src  string
	}{
		{"not an object", `["Paracetamol"]`},
		{"value not a list", `{"Paracetamol": "500mg"}`},
		{"empty variant list", `{"Paracetamol": []}`},
		{"empty variant string", `{"Paracetamol": ["500mg", " "]}`},
		{"empty name", `{"  ": ["500mg"]}`},
		{"trailing content", `{"Paracetamol": ["500mg"]} extra`},
		{"truncated", `{"Paracetamol": ["500mg"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := catalog.LoadFromReader(strings.NewReader(tt.src))
			if !errors.Is(err, catalog.ErrCorruptCatalog) {
				t.Fatalf("expected ErrCorruptCatalog, got: %v", err)
			}
		})
	}
}

func TestIndex_LookupNormalized(t *testing.T) {
	t.Parallel()
	idx, err := catalog.LoadFromReader(strings.NewReader(`{"Paracetamol": ["Paracetamol 500mg Tablet"]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e, err := idx.LookupNormalized("paracetamol")
	if err != nil {
		t.Fatalf("LookupNormalized(paracetamol): %v", err)
	}
	if e.Name != "Paracetamol" {
		t.Errorf("Name = %q, want Paracetamol", e.Name)
	}

	if _, err := idx.LookupNormalized("ibuprofen"); !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("expected ErrNotFound for absent entry, got: %v", err)
	}
}

func TestHandle_ReloadKeepsPreviousOnCorruptFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "medicines.json")

	writeFile(t, path, `{"Paracetamol": ["Paracetamol 500mg Tablet"]}`)
	idx, err := catalog.LoadFile(path)
	if err != nil {
		t.Fatalf("initial load: %v", err)
	}
	h := catalog.NewHandle(idx)

	writeFile(t, path, `{"Paracetamol": []}`)
	if err := h.Reload(path); !errors.Is(err, catalog.ErrCorruptCatalog) {
		t.Fatalf("expected ErrCorruptCatalog on reload, got: %v", err)
	}

	// The previous index must still be served.
	if h.Index().Len() != 1 {
		t.Errorf("handle lost previous index after failed reload: len = %d", h.Index().Len())
	}
	if _, err := h.Index().LookupNormalized("paracetamol"); err != nil {
		t.Errorf("previous entry gone after failed reload: %v", err)
	}
}

func TestHandle_ReloadSwapsNewIndex(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "medicines.json")

	writeFile(t, path, `{"Paracetamol": ["Paracetamol 500mg Tablet"]}`)
	idx, err := catalog.LoadFile(path)
	if err != nil {
		t.Fatalf("initial load: %v", err)
	}
	h := catalog.NewHandle(idx)

	writeFile(t, path, `{"Paracetamol": ["Paracetamol 500mg Tablet"], "Ibuprofen": ["Ibuprofen 200mg Tablet"]}`)
	if err := h.Reload(path); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if h.Index().Len() != 2 {
		t.Errorf("len = %d after reload, want 2", h.Index().Len())
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
