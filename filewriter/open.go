package filewriter

import (
	"bytes"
	"io"
	"os"
)

// zstdMagic is the four-byte frame magic number every zstd frame starts
// with, used to detect transparently whether a cache file on disk was
// written compressed without needing to persist that fact anywhere
// else: the physical path is a pure function of the fingerprint key
// (pathbuilder), so the compression decision can't be encoded in the
// path or it would break that invariant.
var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// OpenForRead opens path for reading and transparently decompresses it
// if it was written with zstd. Returns an error satisfying
// errors.Is(err, fs.ErrNotExist) if the file doesn't exist, matching
// os.Open's contract so callers can keep using fs.ErrNotExist /
// ioerr.Classify on the result.
func OpenForRead(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	head := make([]byte, len(zstdMagic))
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		f.Close()
		return nil, err
	}

	if n == len(zstdMagic) && bytes.Equal(head, zstdMagic) {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			f.Close()
			return nil, err
		}
		dec, err := newZstdReadCloser(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		return dec, nil
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}
