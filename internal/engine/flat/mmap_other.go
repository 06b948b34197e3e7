//go:build !unix

package flat

import (
	"io"
	"os"
)

// mapFile reads the first size bytes of f into memory. Without mmap the file
// handle can be released immediately, which keeps the staged file deletable.
func mapFile(f *os.File, size int) ([]byte, func() error, error) {
	data := make([]byte, size)
	if _, err := io.ReadFull(io.NewSectionReader(f, 0, int64(size)), data); err != nil {
		return nil, nil, err
	}
	return data, func() error { return nil }, nil
}
