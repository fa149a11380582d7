package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"

	"github.com/jusdhrv/Trequer-Dashboard/pkg/apperror"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/config"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/logging"
)

const (
	ContentTypeZip  = "application/zip"
	ContentTypeJSON = "application/json"
	ContentTypeCSV  = "text/csv"
)

// Archive is a packaged export ready to be written to the caller.
type Archive struct {
	Filename     string
	ContentType  string
	Data         []byte
	Compressed   bool
	OriginalSize int
}

// compressFunc builds a single-entry archive holding content as entry.
type compressFunc func(entry string, content []byte, level int) ([]byte, error)

// Packager turns serialized exports into downloadable archives. The
// primary path is a deflated zip; on failure the raw content is delivered
// instead, unless the fallback is disabled.
type Packager struct {
	maxBytes int
	level    int
	fallback bool
	compress compressFunc
	logger   *logging.Logger
}

// NewPackager creates a packager from the export configuration.
func NewPackager(cfg config.ExportConfig) *Packager {
	level := cfg.CompressionLevel
	if level < flate.BestSpeed || level > flate.BestCompression {
		level = config.DefaultCompressionLevel
	}
	maxBytes := cfg.MaxPayloadBytes
	if maxBytes <= 0 {
		maxBytes = config.DefaultExportMaxBytes
	}
	return &Packager{
		maxBytes: maxBytes,
		level:    level,
		fallback: cfg.FallbackEnabled,
		compress: zipEntry,
		logger:   logging.With("component", "export"),
	}
}

// Package serializes data as indented JSON and archives it as
// <name>.json inside <name>.zip. data must encode to a JSON object.
func (p *Packager) Package(ctx context.Context, data interface{}, name string) (*Archive, error) {
	if data == nil {
		return nil, apperror.New(apperror.KindInvalidRequest, "no data provided for export")
	}

	content, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInvalidRequest, "export data is not serializable", err)
	}
	if len(content) == 0 || content[0] != '{' {
		return nil, apperror.New(apperror.KindInvalidRequest, "export data must be an object")
	}

	return p.PackageFile(ctx, content, name+".json", ContentTypeJSON)
}

// PackageFile archives already serialized content under filename.
func (p *Packager) PackageFile(ctx context.Context, content []byte, filename, contentType string) (*Archive, error) {
	filename = cleanName(filename)
	if filename == "" {
		return nil, apperror.New(apperror.KindInvalidRequest, "export file name is required")
	}
	if len(content) > p.maxBytes {
		return nil, apperror.New(apperror.KindPayloadTooLarge,
			fmt.Sprintf("export is %d bytes, limit is %d; narrow the time range", len(content), p.maxBytes))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ext := path.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	start := time.Now()
	zipped, err := p.compress(filename, content, p.level)
	if err == nil {
		p.logger.Debug("Export compressed",
			"file", base+".zip",
			"original_bytes", len(content),
			"zip_bytes", len(zipped),
			"took", time.Since(start))
		return &Archive{
			Filename:     base + ".zip",
			ContentType:  ContentTypeZip,
			Data:         zipped,
			Compressed:   true,
			OriginalSize: len(content),
		}, nil
	}

	p.logger.Warn("Export compression failed", "file", filename, "error", err)
	if !p.fallback {
		return nil, apperror.Wrap(apperror.KindExportUnsupported,
			"archive compression failed and the uncompressed fallback is disabled", err)
	}

	return &Archive{
		Filename:     base + "_fallback" + ext,
		ContentType:  contentType,
		Data:         content,
		OriginalSize: len(content),
	}, nil
}

// zipEntry writes a one-file zip with a deflate compressor at level.
func zipEntry(entry string, content []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, level)
	})

	fw, err := zw.CreateHeader(&zip.FileHeader{
		Name:     entry,
		Method:   zip.Deflate,
		Modified: time.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create zip entry: %w", err)
	}
	if _, err := fw.Write(content); err != nil {
		return nil, fmt.Errorf("failed to write zip entry: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish zip: %w", err)
	}
	return buf.Bytes(), nil
}

// cleanName keeps only the final path element so names cannot escape the
// archive root or a download directory.
func cleanName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	if name == "." || name == "/" {
		return ""
	}
	return name
}
