package validation

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGetDiskSpace(t *testing.T) {
	dir := t.TempDir()
	info, err := GetDiskSpace(dir)
	if err != nil {
		t.Fatalf("GetDiskSpace: %v", err)
	}
	if info.Total <= 0 || info.Free < 0 || info.Free > info.Total {
		t.Errorf("implausible figures: %+v", info)
	}
	if info.Path != dir {
		t.Errorf("Path = %q, want %q", info.Path, dir)
	}
	if info.FreeFormatted() == "" {
		t.Error("FreeFormatted should not be empty")
	}
}

func TestGetDiskSpace_ResolvesMissingAndFiles(t *testing.T) {
	dir := t.TempDir()

	info, err := GetDiskSpace(filepath.Join(dir, "not", "yet", "created.db"))
	if err != nil {
		t.Fatalf("missing path: %v", err)
	}
	if info.Path != dir {
		t.Errorf("missing path resolved to %q, want %q", info.Path, dir)
	}

	file := filepath.Join(dir, "history.db")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	info, err = GetDiskSpace(file)
	if err != nil {
		t.Fatalf("file path: %v", err)
	}
	if info.Path != dir {
		t.Errorf("file resolved to %q, want %q", info.Path, dir)
	}
}

func TestCheckDiskSpace(t *testing.T) {
	dir := t.TempDir()
	if _, err := CheckDiskSpace(dir, 1); err != nil {
		t.Errorf("1 byte should be available: %v", err)
	}

	_, err := CheckDiskSpace(dir, 1<<62)
	var dsErr *DiskSpaceError
	if !errors.As(err, &dsErr) {
		t.Fatalf("error = %v, want *DiskSpaceError", err)
	}
	if !strings.Contains(dsErr.Error(), "insufficient disk space") {
		t.Errorf("message = %q", dsErr.Error())
	}
}
