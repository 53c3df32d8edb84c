package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// ExtractZIP extracts all files from a ZIP archive to the destination directory.
// Returns the list of extracted file paths.
func ExtractZIP(zipPath, destDir string) ([]string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, eris.Wrap(err, "zip: open archive")
	}
	defer r.Close() //nolint:errcheck

	var extracted []string
	for _, f := range r.File {
		p, err := extractZIPEntry(f, destDir)
		if err != nil {
			return extracted, err
		}
		if p != "" {
			extracted = append(extracted, p)
		}
	}

	return extracted, nil
}

// ExtractZIPFile extracts one file from a ZIP archive. The name is matched
// case-insensitively against each entry's base name, so feeds that nest
// their files in a folder still resolve.
func ExtractZIPFile(zipPath, fileName, destDir string) (string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", eris.Wrap(err, "zip: open archive")
	}
	defer r.Close() //nolint:errcheck

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if f.Name == fileName || strings.EqualFold(path.Base(f.Name), fileName) {
			return extractZIPEntry(f, destDir)
		}
	}

	return "", eris.Errorf("zip: file %q not found in archive", fileName)
}

// extractZIPEntry extracts a single zip.File to the destination directory.
// Returns the extracted file path, or empty string for directories.
func extractZIPEntry(f *zip.File, destDir string) (string, error) {
	destPath := filepath.Join(destDir, f.Name)
	if !strings.HasPrefix(filepath.Clean(destPath), filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", eris.Errorf("zip: illegal path %q", f.Name)
	}

	if f.FileInfo().IsDir() {
		if err := os.MkdirAll(destPath, 0o755); err != nil {
			return "", eris.Wrap(err, "zip: create directory")
		}
		return "", nil
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", eris.Wrap(err, "zip: create parent directory")
	}

	rc, err := f.Open()
	if err != nil {
		return "", eris.Wrap(err, "zip: open entry")
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(destPath)
	if err != nil {
		return "", eris.Wrap(err, "zip: create file")
	}
	defer out.Close() //nolint:errcheck

	if _, err := io.Copy(out, rc); err != nil {
		return "", eris.Wrap(err, "zip: write file")
	}

	return destPath, nil
}
