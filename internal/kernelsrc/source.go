// Package kernelsrc loads OpenCL kernel source files into owned buffers.
package kernelsrc

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
)

var (
	// ErrNotFound is returned when the kernel source file does not exist.
	ErrNotFound = errors.New("kernel source not found")
	// ErrEmpty is returned for a zero-length kernel source file.
	ErrEmpty = errors.New("kernel source is empty")
	// ErrShortRead is returned when fewer bytes than the file size could be read.
	ErrShortRead = errors.New("kernel source short read")
)

// Source is kernel program text with an explicit length. It carries no
// terminator; Len is always len(Bytes()).
type Source struct {
	Path string
	data []byte
}

// Load reads the whole file at path.
func Load(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to open kernel source: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat kernel source: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("kernel source %s is a directory", path)
	}

	size := info.Size()
	if size == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmpty, path)
	}

	data := make([]byte, size)
	n, err := io.ReadFull(f, data)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: read %d of %d bytes from %s", ErrShortRead, n, size, path)
		}
		return nil, fmt.Errorf("failed to read kernel source: %w", err)
	}

	slog.Debug("Kernel source loaded", "path", path, "bytes", n)
	return &Source{Path: path, data: data}, nil
}

// Bytes returns the source text. The slice must not be modified.
func (s *Source) Bytes() []byte {
	return s.data
}

// Len returns the source length in bytes.
func (s *Source) Len() int {
	return len(s.data)
}

func (s *Source) String() string {
	return string(s.data)
}
