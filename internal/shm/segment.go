//go:build unix

package shm

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"unsafe"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// Descriptor tells another process how to map a segment
type Descriptor struct {
	Path     string `json:"path"`
	Size     int    `json:"size"`
	Capacity int    `json:"capacity,omitempty"`
	ElemSize int    `json:"elem_size,omitempty"`
}

// Segment is a file mapped shared into this process
type Segment struct {
	path  string
	owner bool

	mu  sync.Mutex
	mem []byte
}

// DefaultDir returns /dev/shm when present, otherwise the temp directory
func DefaultDir() string {
	if info, err := os.Stat("/dev/shm"); err == nil && info.IsDir() {
		return "/dev/shm"
	}
	return os.TempDir()
}

// CreateSegment creates and maps a new zeroed segment file in dir.
// The file name is prefix followed by a random UUID.
func CreateSegment(dir, prefix string, size int) (*Segment, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid segment size: %d", size)
	}
	if dir == "" {
		dir = DefaultDir()
	}

	path := filepath.Join(dir, prefix+uuid.NewString())

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create segment file %s: %w", path, err)
	}
	defer file.Close()

	cleanup := func() {
		os.Remove(path)
	}

	if err := file.Truncate(int64(size)); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to resize segment file: %w", err)
	}

	mem, err := mmapFile(file, size)
	if err != nil {
		cleanup()
		return nil, err
	}

	return &Segment{path: path, owner: true, mem: mem}, nil
}

// OpenSegment maps an existing segment file; size must match the file
func OpenSegment(path string, size int) (*Segment, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open segment file %s: %w", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat segment file: %w", err)
	}
	if size <= 0 || info.Size() < int64(size) {
		return nil, fmt.Errorf("%w: file is %d bytes, descriptor wants %d", ErrBadSegment, info.Size(), size)
	}

	mem, err := mmapFile(file, size)
	if err != nil {
		return nil, err
	}

	return &Segment{path: path, mem: mem}, nil
}

func mmapFile(file *os.File, size int) ([]byte, error) {
	mem, err := unix.Mmap(int(file.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap failed: %w", err)
	}
	return mem, nil
}

// Path returns the backing file path
func (s *Segment) Path() string {
	return s.path
}

// Size returns the mapped length
func (s *Segment) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.mem)
}

// Bytes returns the mapped memory. It is invalid after Close.
func (s *Segment) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mem
}

func (s *Segment) uint32At(off int) *uint32 {
	return (*uint32)(unsafe.Pointer(&s.mem[off]))
}

func (s *Segment) uint64At(off int) *uint64 {
	return (*uint64)(unsafe.Pointer(&s.mem[off]))
}

// Close unmaps the segment. Segments created by this process also remove
// their backing file. Close is idempotent.
func (s *Segment) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mem == nil {
		return nil
	}

	err := unix.Munmap(s.mem)
	s.mem = nil
	if err != nil {
		err = fmt.Errorf("munmap failed: %w", err)
	}

	if s.owner {
		if rmErr := os.Remove(s.path); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
			err = fmt.Errorf("failed to remove segment file: %w", rmErr)
		}
	}

	return err
}
