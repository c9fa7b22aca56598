package archive

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCreateExtract_RoundTrip(t *testing.T) {
	srcDir := t.TempDir()
	writeFile(t, filepath.Join(srcDir, "main.py"), "print('hi')\n", 0o644)
	writeFile(t, filepath.Join(srcDir, "nested", "util.py"), "pass\n", 0o644)

	archivePath := filepath.Join(t.TempDir(), "src.tar.gz")
	if err := Create(srcDir, archivePath, "src"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	destDir := t.TempDir()
	if err := Extract(archivePath, destDir); err != nil {
		t.Fatalf("Extract: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(destDir, "src", "main.py"))
	if err != nil {
		t.Fatalf("read extracted file: %v", err)
	}
	if string(got) != "print('hi')\n" {
		t.Errorf("extracted content = %q", got)
	}
	if _, err := os.Stat(filepath.Join(destDir, "src", "nested", "util.py")); err != nil {
		t.Errorf("nested file missing: %v", err)
	}
}

func TestCreate_RootNameTransform(t *testing.T) {
	srcDir := t.TempDir()
	writeFile(t, filepath.Join(srcDir, "config.yaml"), "a: 1\n", 0o644)

	archivePath := filepath.Join(t.TempDir(), "assets.tar.gz")
	if err := Create(srcDir, archivePath, "assets"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	destDir := t.TempDir()
	if err := Extract(archivePath, destDir); err != nil {
		t.Fatalf("Extract: %v", err)
	}

	// The tree lands under the chosen root name, not the source basename.
	if _, err := os.Stat(filepath.Join(destDir, "assets", "config.yaml")); err != nil {
		t.Errorf("expected assets/config.yaml: %v", err)
	}
}

func TestExtract_PreservesExecutableBit(t *testing.T) {
	srcDir := t.TempDir()
	writeFile(t, filepath.Join(srcDir, "run.sh"), "#!/bin/sh\n", 0o755)

	archivePath := filepath.Join(t.TempDir(), "src.tar.gz")
	if err := Create(srcDir, archivePath, "src"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	destDir := t.TempDir()
	if err := Extract(archivePath, destDir); err != nil {
		t.Fatalf("Extract: %v", err)
	}

	info, err := os.Stat(filepath.Join(destDir, "src", "run.sh"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm()&0o100 == 0 {
		t.Errorf("executable bit lost: mode = %v", info.Mode())
	}
}

func TestCreate_NoTempFileLeftBehind(t *testing.T) {
	srcDir := t.TempDir()
	writeFile(t, filepath.Join(srcDir, "a"), "a", 0o644)

	dstDir := t.TempDir()
	if err := Create(srcDir, filepath.Join(dstDir, "src.tar.gz"), "src"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	entries, err := os.ReadDir(dstDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "src.tar.gz" {
		t.Errorf("unexpected entries in destination dir: %v", entries)
	}
}

func writeFile(t *testing.T, path, content string, mode os.FileMode) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		t.Fatal(err)
	}
}
