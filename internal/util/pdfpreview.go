package util

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"
)

var (
	pdftoppmOnce      sync.Once
	pdftoppmAvailable bool
)

// PDFPreviewAvailable probes for the pdftoppm binary exactly once
// (spec.md §4.10: "Availability is detected once by running the tool with
// -v") and caches the result for the process lifetime.
func PDFPreviewAvailable() bool {
	pdftoppmOnce.Do(func() {
		cmd := exec.Command("pdftoppm", "-v")
		pdftoppmAvailable = cmd.Run() == nil
	})
	return pdftoppmAvailable
}

// RenderPDFFirstPage shells out to `pdftoppm -f 1 -l 1 -singlefile -png`
// to rasterise path's first page into a temp PNG, reads it into memory,
// and deletes the temp file (spec.md §4.10), grounded on
// original_source's render_pdf_first_page.
func RenderPDFFirstPage(ctx context.Context, path string) ([]byte, error) {
	stamp := time.Now().UnixNano()
	prefix := filepath.Join(os.TempDir(), fmt.Sprintf("ratmail-pdf-preview-%d-%d", os.Getpid(), stamp))

	cmd := exec.CommandContext(ctx, "pdftoppm", "-f", "1", "-l", "1", "-singlefile", "-png", path, prefix)
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w", err)
	}

	pngPath := prefix + ".png"
	defer os.Remove(pngPath)

	data, err := os.ReadFile(pngPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read pdftoppm output: %w", err)
	}
	return data, nil
}
