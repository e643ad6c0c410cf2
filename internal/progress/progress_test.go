package progress

import (
	"bytes"
	"strings"
	"testing"
)

func TestZeroFactoryDrawsNothing(t *testing.T) {
	var f Factory
	bar := f.New(3, "Working")
	if err := bar.Add(1); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := bar.Finish(); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
}

func TestFactoryWritesDescription(t *testing.T) {
	var buf bytes.Buffer
	bar := NewFactory(&buf).New(2, "Downloading PDFs")

	_ = bar.Add(1)
	_ = bar.Add(1)
	_ = bar.Finish()

	if !strings.Contains(buf.String(), "Downloading PDFs") {
		t.Errorf("expected description in output, got %q", buf.String())
	}
}
