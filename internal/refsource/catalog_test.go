package refsource_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/eduquiz/quizforge/internal/refsource"
)

func setupTestCatalog(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	enem := `id: enem
name: ENEM
aliases:
  - Exame Nacional do Ensino Médio
editions: [2020, 2021, 2022, 2023]
subjects:
  - Linguagens
  - Matemática
  - Ciências da Natureza
notes: Prova interdisciplinar com forte leitura de contexto.
`
	fuvest := `id: fuvest
name: Fuvest
editions: [2022, 2023]
subjects:
  - Português
  - Matemática
`
	if err := os.WriteFile(filepath.Join(dir, "enem.yaml"), []byte(enem), 0o644); err != nil {
		t.Fatalf("write enem.yaml: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "fuvest.yml"), []byte(fuvest), 0o644); err != nil {
		t.Fatalf("write fuvest.yml: %v", err)
	}
	// Non-exam YAML files are skipped, not fatal.
	if err := os.WriteFile(filepath.Join(dir, "readme.yaml"), []byte("just: notes\n"), 0o644); err != nil {
		t.Fatalf("write readme.yaml: %v", err)
	}
	return dir
}

func TestCatalog_Get(t *testing.T) {
	catalog, err := refsource.NewCatalog(setupTestCatalog(t))
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}

	exam, found := catalog.Get("ENEM")
	if !found {
		t.Fatal("Get(ENEM) not found")
	}
	if len(exam.Editions) != 4 {
		t.Errorf("Editions = %v, want 4 years", exam.Editions)
	}

	// Lookup works by id, name or alias, case-insensitively.
	for _, tag := range []string{"enem", "  Enem ", "exame nacional do ensino médio"} {
		if _, found := catalog.Get(tag); !found {
			t.Errorf("Get(%q) not found", tag)
		}
	}

	if _, found := catalog.Get("vestibular-fantasma"); found {
		t.Error("Get() found an exam that was never loaded")
	}
}

func TestCatalog_Describe(t *testing.T) {
	catalog, err := refsource.NewCatalog(setupTestCatalog(t))
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}

	desc := catalog.Describe("enem")
	for _, want := range []string{"2020, 2021, 2022, 2023", "Linguagens", "leitura de contexto"} {
		if !strings.Contains(desc, want) {
			t.Errorf("Describe(enem) = %q, missing %q", desc, want)
		}
	}

	if got := catalog.Describe("desconhecida"); got != "" {
		t.Errorf("Describe(desconhecida) = %q, want empty", got)
	}
}

func TestCatalog_All(t *testing.T) {
	catalog, err := refsource.NewCatalog(setupTestCatalog(t))
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}

	exams := catalog.All()
	if len(exams) != 2 {
		t.Fatalf("All() = %d exams, want 2 (aliases must not duplicate)", len(exams))
	}
	if exams[0].Name != "ENEM" || exams[1].Name != "Fuvest" {
		t.Errorf("All() order = [%s %s], want sorted by name", exams[0].Name, exams[1].Name)
	}
}

func TestCatalog_EmptyDir(t *testing.T) {
	catalog, err := refsource.NewCatalog(t.TempDir())
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}
	if catalog.Len() != 0 {
		t.Errorf("Len() = %d, want 0", catalog.Len())
	}
}
