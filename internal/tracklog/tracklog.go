// Package tracklog escribe una línea delimitada por cada registro DATA
// aceptado, con rotación simple por tamaño.
package tracklog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gps-svr/internal/pipeline"
)

const DefaultMaxBytes = 1_000_000

type Writer struct {
	mu       sync.Mutex
	path     string
	maxBytes int64
}

// New devuelve un Writer hacia path. maxBytes <= 0 desactiva la rotación.
func New(path string, maxBytes int64) *Writer {
	return &Writer{path: path, maxBytes: maxBytes}
}

func (w *Writer) Name() string { return "tracklog" }

func (w *Writer) Path() string { return w.path }

func (w *Writer) Publish(_ context.Context, tr *pipeline.TrackingObject) error {
	return w.Append(FormatLine(tr))
}

// FormatLine: fecha|GPS<id>|SEQ<n>|lat|lon|alt|vel|rumbo|bat|0xFLAGS
func FormatLine(tr *pipeline.TrackingObject) string {
	ts := time.Unix(tr.Unix, 0).UTC().Format("2006-01-02 15:04:05")
	return fmt.Sprintf("%s|GPS%d|SEQ%d|%.7f|%.7f|%d|%.1f|%.1f|%d|0x%02X",
		ts, tr.DeviceID, tr.Seq, tr.Lat, tr.Lon, tr.Alt, tr.Spd, tr.Crs, tr.Battery, tr.Flags)
}

// Append agrega una línea, rotando antes si el archivo ya alcanzó maxBytes.
func (w *Writer) Append(line string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if dir := filepath.Dir(w.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("tracklog: mkdir %s: %w", dir, err)
		}
	}
	if err := w.rotateIfNeeded(); err != nil {
		return err
	}

	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("tracklog: open: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("tracklog: write: %w", err)
	}
	return nil
}

// rotateIfNeeded renombra el log a <path>.1, reemplazando uno anterior.
func (w *Writer) rotateIfNeeded() error {
	if w.maxBytes <= 0 {
		return nil
	}
	st, err := os.Stat(w.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("tracklog: stat: %w", err)
	}
	if st.Size() < w.maxBytes {
		return nil
	}

	dest := w.path + ".1"
	if err := os.Remove(dest); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("tracklog: remove %s: %w", dest, err)
	}
	if err := os.Rename(w.path, dest); err != nil {
		return fmt.Errorf("tracklog: rotate: %w", err)
	}
	return nil
}
