package sourcedir

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Pack bundles the entry point script into a gzipped tarball with the script
// at the archive root, the layout framework containers unpack into their
// submit directory.
func Pack(entryPoint string) (*bytes.Buffer, error) {
	f, err := os.Open(entryPoint)
	if err != nil {
		return nil, fmt.Errorf("failed to open entry point: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat entry point: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("entry point [%s] is a directory", entryPoint)
	}

	buf := &bytes.Buffer{}
	gz := gzip.NewWriter(buf)
	tw := tar.NewWriter(gz)
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return nil, err
	}
	hdr.Name = filepath.Base(entryPoint)
	if err := tw.WriteHeader(hdr); err != nil {
		return nil, fmt.Errorf("failed to write tar header: %w", err)
	}
	if _, err := io.Copy(tw, f); err != nil {
		return nil, fmt.Errorf("failed to write entry point to archive: %w", err)
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf, nil
}
