package gemfile

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/git-pkgs/gemindex/internal/checksum"
	"github.com/git-pkgs/gemindex/internal/gemver"
)

const maxMetadataSize = 8 << 20

// DecodeError is returned when an uploaded archive cannot be read.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid gem: %s: %v", e.Reason, e.Err)
	}
	return "invalid gem: " + e.Reason
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode reads the metadata of a .gem archive.
func Decode(archive []byte) (*Spec, error) {
	tr := tar.NewReader(bytes.NewReader(archive))

	var metadata []byte
	hasData := false
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &DecodeError{Reason: "reading tar", Err: err}
		}

		switch hdr.Name {
		case "data.tar.gz":
			hasData = true
		case "metadata.gz":
			zr, err := gzip.NewReader(tr)
			if err != nil {
				return nil, &DecodeError{Reason: "opening metadata.gz", Err: err}
			}
			metadata, err = io.ReadAll(io.LimitReader(zr, maxMetadataSize))
			_ = zr.Close()
			if err != nil {
				return nil, &DecodeError{Reason: "reading metadata.gz", Err: err}
			}
		case "metadata":
			metadata, err = io.ReadAll(io.LimitReader(tr, maxMetadataSize))
			if err != nil {
				return nil, &DecodeError{Reason: "reading metadata", Err: err}
			}
		}
	}

	if metadata == nil {
		return nil, &DecodeError{Reason: "missing metadata"}
	}
	if !hasData {
		return nil, &DecodeError{Reason: "missing data.tar.gz"}
	}

	spec, err := parseSpecYAML(metadata)
	if err != nil {
		return nil, &DecodeError{Reason: "parsing metadata", Err: err}
	}
	if spec.Name == "" {
		return nil, &DecodeError{Reason: "missing name"}
	}
	if strings.ContainsAny(spec.Name, " \t\n/") {
		return nil, &DecodeError{Reason: fmt.Sprintf("invalid name %q", spec.Name)}
	}
	if !gemver.Valid(spec.Version) {
		return nil, &DecodeError{Reason: fmt.Sprintf("malformed version %q", spec.Version)}
	}
	return spec, nil
}

// File is a file packed into a gem's data.tar.gz.
type File struct {
	Path    string
	Content []byte
}

// Build packs spec and files into a .gem archive. Output is deterministic:
// timestamps come from spec.Date and gzip headers carry no mtime.
func Build(spec *Spec, files ...File) ([]byte, error) {
	metadataYAML, err := specYAML(spec)
	if err != nil {
		return nil, err
	}
	metadataGz, err := gzipBytes(metadataYAML)
	if err != nil {
		return nil, err
	}

	data, err := tarBytes(spec.Date, files)
	if err != nil {
		return nil, err
	}
	dataGz, err := gzipBytes(data)
	if err != nil {
		return nil, err
	}

	sums, err := yaml.Marshal(map[string]map[string]string{
		"SHA256": {
			"metadata.gz": checksum.Strong(metadataGz),
			"data.tar.gz": checksum.Strong(dataGz),
		},
	})
	if err != nil {
		return nil, err
	}
	sumsGz, err := gzipBytes(sums)
	if err != nil {
		return nil, err
	}

	return tarBytes(spec.Date, []File{
		{Path: "metadata.gz", Content: metadataGz},
		{Path: "data.tar.gz", Content: dataGz},
		{Path: "checksums.yaml.gz", Content: sumsGz},
	})
}

func tarBytes(modTime time.Time, files []File) ([]byte, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, f := range files {
		hdr := &tar.Header{
			Name:    f.Path,
			Mode:    0o444,
			Size:    int64(len(f.Content)),
			ModTime: modTime,
			Format:  tar.FormatUSTAR,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, fmt.Errorf("writing %s header: %w", f.Path, err)
		}
		if _, err := tw.Write(f.Content); err != nil {
			return nil, fmt.Errorf("writing %s: %w", f.Path, err)
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gzipBytes(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(b); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
