package filewriter

import (
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Compressor transparently zstd-compresses artifact bodies before they
// land on disk, unless the content-type says the bytes are already
// compressed.
type Compressor struct {
	level zstd.EncoderLevel
}

// NewCompressor creates a Compressor using zstd's default speed/ratio
// tradeoff, appropriate for a hot write path.
func NewCompressor() *Compressor {
	return &Compressor{level: zstd.SpeedDefault}
}

// ShouldCompress reports whether contentType is worth zstd-compressing.
func (c *Compressor) ShouldCompress(contentType string) bool {
	_, skip := skipCompressionContentTypes[normalizeContentType(contentType)]
	return !skip
}

func normalizeContentType(contentType string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

// skipCompressionContentTypes lists formats whose bytes are already
// compressed (most raster image and media derivative formats), where a
// second pass of zstd only spends CPU for a negligible or negative size
// gain.
var skipCompressionContentTypes = map[string]struct{}{
	"image/jpeg":                   {},
	"image/jpg":                    {},
	"image/gif":                    {},
	"image/webp":                   {},
	"image/avif":                   {},
	"image/heic":                   {},
	"image/heif":                   {},
	"image/png":                    {},
	"image/x-icon":                 {},
	"image/vnd.microsoft.icon":     {},
	"video/mp4":                    {},
	"video/webm":                   {},
	"video/quicktime":              {},
	"video/x-matroska":             {},
	"audio/mpeg":                   {},
	"audio/aac":                    {},
	"audio/ogg":                    {},
	"audio/opus":                   {},
	"audio/flac":                   {},
	"audio/wav":                    {},
	"font/woff":                    {},
	"font/woff2":                   {},
	"application/pdf":              {},
	"application/zip":              {},
	"application/gzip":             {},
	"application/x-bzip2":          {},
	"application/x-7z-compressed":  {},
	"application/x-rar-compressed": {},
	"application/x-xz":             {},
	"application/zstd":             {},
}

// Encode writes the bytes produced by body into w, compressed with zstd.
func (c *Compressor) Encode(w io.Writer, body func(io.Writer) error) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(c.level))
	if err != nil {
		return err
	}
	if err := body(enc); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// Reader wraps r with a zstd decoder for reading a compressed cache
// file back out.
func (c *Compressor) Reader(r io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return dec.IOReadCloser(), nil
}

// fileAndDecoder closes both the zstd decoder and the underlying file
// it reads from.
type fileAndDecoder struct {
	io.Reader
	file *os.File
	dec  *zstd.Decoder
}

func (f *fileAndDecoder) Close() error {
	f.dec.Close()
	return f.file.Close()
}

func newZstdReadCloser(f *os.File) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	return &fileAndDecoder{Reader: dec, file: f, dec: dec}, nil
}
