package util

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// PackDirectory walks dir depth-first and returns a zip archive of its
// contents with paths relative to dir's parent (spec.md §4.10), directory
// entries carrying a trailing slash and file entries using deflate
// compression. Grounded on jhjaggars-pkm-sync's archive.go write-loop shape
// and original_source's zip_directory (which strips the same base_parent
// prefix and deflates every file entry).
func PackDirectory(dir string) ([]byte, error) {
	base := filepath.Dir(dir)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	root, err := filepath.Rel(base, dir)
	if err != nil {
		root = filepath.Base(dir)
	}
	root = toSlash(root)
	if root != "" && root != "." {
		if _, err := zw.Create(root + "/"); err != nil {
			return nil, fmt.Errorf("failed to add root directory entry: %w", err)
		}
	}

	if err := addDirToZip(zw, base, dir); err != nil {
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}

func addDirToZip(zw *zip.Writer, base, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read directory %s: %w", dir, err)
	}
	// Deterministic ordering: real filesystems have none, but a stable
	// archive is easier to diff and test against.
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		rel, err := filepath.Rel(base, path)
		if err != nil {
			return fmt.Errorf("failed to compute relative path for %s: %w", path, err)
		}
		rel = toSlash(rel)

		if entry.IsDir() {
			if _, err := zw.Create(rel + "/"); err != nil {
				return fmt.Errorf("failed to add directory entry %s: %w", rel, err)
			}
			if err := addDirToZip(zw, base, path); err != nil {
				return err
			}
			continue
		}

		if err := addFileToZip(zw, path, rel); err != nil {
			return err
		}
	}
	return nil
}

func addFileToZip(zw *zip.Writer, path, rel string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	header := &zip.FileHeader{Name: rel, Method: zip.Deflate}
	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to add file entry %s: %w", rel, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to write file entry %s: %w", rel, err)
	}
	return nil
}

func toSlash(p string) string {
	return strings.ReplaceAll(p, string(filepath.Separator), "/")
}
