package filestore

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// 1x1 transparent PNG.
var pngPixel = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0a, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

func TestSaveImage(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocal(dir, "/uploads")
	if err != nil {
		t.Fatalf("new local: %v", err)
	}
	url, err := store.SaveImage("avatars", bytes.NewReader(pngPixel))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.HasPrefix(url, "/uploads/avatars/") || !strings.HasSuffix(url, ".png") {
		t.Fatalf("unexpected url %q", url)
	}
	saved, err := os.ReadFile(filepath.Join(dir, strings.TrimPrefix(url, "/uploads/")))
	if err != nil {
		t.Fatalf("read saved file: %v", err)
	}
	if !bytes.Equal(saved, pngPixel) {
		t.Fatalf("saved content differs")
	}
}

func TestSaveImageRejectsNonImages(t *testing.T) {
	store, err := NewLocal(t.TempDir(), "/uploads/")
	if err != nil {
		t.Fatalf("new local: %v", err)
	}
	_, err = store.SaveImage("avatars", strings.NewReader("<html><body>hi</body></html>"))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
}

func TestSaveImageStaysInsideDir(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocal(dir, "/uploads/")
	if err != nil {
		t.Fatalf("new local: %v", err)
	}
	url, err := store.SaveImage("../../etc", bytes.NewReader(pngPixel))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.HasPrefix(url, "/uploads/etc/") {
		t.Fatalf("unexpected url %q", url)
	}
	if _, err := os.Stat(filepath.Join(dir, "etc")); err != nil {
		t.Fatalf("expected folder inside upload dir: %v", err)
	}
}
