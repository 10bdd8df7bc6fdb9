package filestore

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var ErrUnsupportedType = errors.New("unsupported file type")

var imageExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Local stores uploaded images under a directory and serves them from a
// public URL prefix.
type Local struct {
	dir     string
	baseURL string
}

func NewLocal(dir, baseURL string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Local{dir: dir, baseURL: baseURL}, nil
}

func (l *Local) Dir() string {
	return l.dir
}

// SaveImage writes an image into folder and returns its public URL. The
// type is sniffed from the content, not taken from the client.
func (l *Local) SaveImage(folder string, r io.Reader) (string, error) {
	br := bufio.NewReaderSize(r, 512)
	head, err := br.Peek(512)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return "", fmt.Errorf("read upload: %w", err)
	}
	ext, ok := imageExtensions[http.DetectContentType(head)]
	if !ok {
		return "", ErrUnsupportedType
	}

	folder = filepath.Base(filepath.Clean("/" + folder))
	if folder == "/" || folder == "." {
		folder = "misc"
	}
	if err := os.MkdirAll(filepath.Join(l.dir, folder), 0o755); err != nil {
		return "", fmt.Errorf("create folder: %w", err)
	}
	name := uuid.NewString() + ext
	f, err := os.CreateTemp(filepath.Join(l.dir, folder), "upload-*")
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	tmp := f.Name()
	if _, err := io.Copy(f, br); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", fmt.Errorf("write file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(l.dir, folder, name)); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("store file: %w", err)
	}
	return l.baseURL + path.Join(folder, name), nil
}
