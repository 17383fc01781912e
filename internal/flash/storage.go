// Package flash emulates the device's byte-addressed flash and holds the
// persistent-state sentinel the reset command erases.
package flash

import (
	"errors"
	"fmt"

	"github.com/sasha-s/go-deadlock"
)

const (
	// PageSize is the unit the backing stores persist.
	PageSize = 4096
	// DefaultCapacity is the size of the emulated flash (4 MiB).
	DefaultCapacity uint32 = 4 << 20
	// Erased is the value of every unwritten flash byte.
	Erased byte = 0xFF
)

// ErrOutOfRange is returned for accesses past the end of the flash.
var ErrOutOfRange = errors.New("flash: access out of range")

// Storage is a byte-addressed flash region.
type Storage interface {
	Read(offset uint32, buf []byte) error
	Write(offset uint32, data []byte) error
	Capacity() uint32
}

func checkRange(offset uint32, n int, capacity uint32) error {
	if uint64(offset)+uint64(n) > uint64(capacity) {
		return fmt.Errorf("%w: %d bytes at %#x (capacity %#x)", ErrOutOfRange, n, offset, capacity)
	}
	return nil
}

// pageSpan calls fn for every page touched by [offset, offset+n).
func pageSpan(offset uint32, n int, fn func(page uint32, pageOff, off, length int) error) error {
	done := 0
	for done < n {
		addr := offset + uint32(done)
		page := addr / PageSize
		pageOff := int(addr % PageSize)
		length := PageSize - pageOff
		if rem := n - done; rem < length {
			length = rem
		}
		if err := fn(page, pageOff, done, length); err != nil {
			return err
		}
		done += length
	}
	return nil
}

func erasedPage() []byte {
	p := make([]byte, PageSize)
	for i := range p {
		p[i] = Erased
	}
	return p
}

// Memory is a volatile flash image.
type Memory struct {
	capacity uint32

	mu    deadlock.RWMutex
	pages map[uint32][]byte
}

func NewMemory(capacity uint32) *Memory {
	return &Memory{capacity: capacity, pages: make(map[uint32][]byte)}
}

func (m *Memory) Capacity() uint32 { return m.capacity }

func (m *Memory) Read(offset uint32, buf []byte) error {
	if err := checkRange(offset, len(buf), m.capacity); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return pageSpan(offset, len(buf), func(page uint32, pageOff, off, length int) error {
		p, ok := m.pages[page]
		if !ok {
			for i := 0; i < length; i++ {
				buf[off+i] = Erased
			}
			return nil
		}
		copy(buf[off:off+length], p[pageOff:])
		return nil
	})
}

func (m *Memory) Write(offset uint32, data []byte) error {
	if err := checkRange(offset, len(data), m.capacity); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return pageSpan(offset, len(data), func(page uint32, pageOff, off, length int) error {
		p, ok := m.pages[page]
		if !ok {
			p = erasedPage()
			m.pages[page] = p
		}
		copy(p[pageOff:], data[off:off+length])
		return nil
	})
}
