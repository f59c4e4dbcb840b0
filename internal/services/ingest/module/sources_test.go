package module

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	perr "backscroll/internal/platform/errors"
	"backscroll/internal/services/ingest/domain"
)

const validSources = `sources:
  - id: C01
    name: eng-infra
  - id: C02
    name: leadership
    visibility: restricted
`

func writeSources(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sources.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write sources: %v", err)
	}
	return path
}

func TestLoadSources_Valid(t *testing.T) {
	srcs, err := LoadSources(writeSources(t, validSources))
	if err != nil {
		t.Fatalf("LoadSources: %v", err)
	}
	if len(srcs) != 2 {
		t.Fatalf("got %d sources, want 2", len(srcs))
	}
	if srcs[0].ID != "C01" || srcs[0].Name != "eng-infra" {
		t.Errorf("first source = %+v", srcs[0])
	}
	if srcs[0].Visibility != domain.VisibilityPublic {
		t.Errorf("visibility default = %q, want public", srcs[0].Visibility)
	}
	if !srcs[1].Restricted() {
		t.Error("restricted visibility lost in parsing")
	}
}

func TestLoadSources_EmptyPath(t *testing.T) {
	_, err := LoadSources("  ")
	if !perr.IsCode(err, perr.ErrorCodeInvalidArgument) {
		t.Fatalf("err = %v, want invalid argument", err)
	}
}

func TestLoadSources_MissingFile(t *testing.T) {
	_, err := LoadSources(filepath.Join(t.TempDir(), "absent.yaml"))
	if !perr.IsCode(err, perr.ErrorCodeInvalidArgument) {
		t.Fatalf("err = %v, want invalid argument", err)
	}
}

func TestLoadSources_BadYAML(t *testing.T) {
	_, err := LoadSources(writeSources(t, "sources: ["))
	if !perr.IsCode(err, perr.ErrorCodeValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestLoadSources_NoSources(t *testing.T) {
	_, err := LoadSources(writeSources(t, "sources: []"))
	if !perr.IsCode(err, perr.ErrorCodeValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestLoadSources_MissingName(t *testing.T) {
	_, err := LoadSources(writeSources(t, "sources:\n  - id: C01\n"))
	if !perr.IsCode(err, perr.ErrorCodeValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
	if !strings.Contains(err.Error(), "name") {
		t.Errorf("message %q should name the offending field", err.Error())
	}
}

func TestLoadSources_BadVisibility(t *testing.T) {
	_, err := LoadSources(writeSources(t, "sources:\n  - id: C01\n    name: x\n    visibility: internal\n"))
	if !perr.IsCode(err, perr.ErrorCodeValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestLoadSources_DuplicateID(t *testing.T) {
	dup := "sources:\n  - id: C01\n    name: a\n  - id: C01\n    name: b\n"
	_, err := LoadSources(writeSources(t, dup))
	if !perr.IsCode(err, perr.ErrorCodeValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
	if !strings.Contains(err.Error(), `duplicate id "C01"`) {
		t.Errorf("message = %q", err.Error())
	}
}
