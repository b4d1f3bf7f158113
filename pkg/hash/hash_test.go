package hash

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSumFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "hello.txt")
	if err := os.WriteFile(path, []byte("hello world"), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	got, err := SumFile(path)
	if err != nil {
		t.Fatalf("SumFile failed: %v", err)
	}

	// Known SHA-256 of "hello world"
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if got != want {
		t.Errorf("SumFile = %q, want %q", got, want)
	}
}

func TestSumFileEmptyFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "empty")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	got, err := SumFile(path)
	if err != nil {
		t.Fatalf("SumFile failed: %v", err)
	}

	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got != want {
		t.Errorf("SumFile = %q, want %q", got, want)
	}
}

func TestSumFileLowercaseHex(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "f")
	if err := os.WriteFile(path, []byte("ABC"), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	got, err := SumFile(path)
	if err != nil {
		t.Fatalf("SumFile failed: %v", err)
	}
	if len(got) != 64 {
		t.Errorf("Expected 64 hex chars, got %d", len(got))
	}
	if got != strings.ToLower(got) {
		t.Errorf("Expected lowercase hex, got %q", got)
	}
}

func TestSumFileMissing(t *testing.T) {
	_, err := SumFile("/nonexistent/file")
	if err == nil {
		t.Fatal("Expected error for missing file")
	}

	var hashErr *Error
	if !errors.As(err, &hashErr) {
		t.Fatalf("Expected *hash.Error, got %T", err)
	}
	if hashErr.Path != "/nonexistent/file" {
		t.Errorf("Expected path in error, got %q", hashErr.Path)
	}
}

func TestSumBytesMatchesSumFile(t *testing.T) {
	content := []byte("content addressed")

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "f")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	fromFile, err := SumFile(path)
	if err != nil {
		t.Fatalf("SumFile failed: %v", err)
	}

	if fromBytes := SumBytes(content); fromBytes != fromFile {
		t.Errorf("SumBytes = %q, SumFile = %q", fromBytes, fromFile)
	}
}
