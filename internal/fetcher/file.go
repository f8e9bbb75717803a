package fetcher

import (
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
)

// ReadFile reads a local filter list through a read-only memory map and
// returns it decoded to UTF-8, gzip and BOM handling included.
func ReadFile(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() == 0 {
		// mmap rejects empty files
		return nil, nil
	}
	if info.Size() > maxListSize {
		return nil, fmt.Errorf("%s exceeds %d bytes", path, maxListSize)
	}

	m, err := mmap.Map(file, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	defer m.Unmap()

	// Decode may hand back a slice of its input, so copy out of the mapping first.
	data := make([]byte, len(m))
	copy(data, m)
	return Decode(data, "")
}
