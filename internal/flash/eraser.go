package flash

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Location of the persistent-state sentinel.
const (
	SentinelAddr uint32 = 0xD000
	SentinelSize        = 32
)

// DefaultEraseAttempts bounds the sentinel write retries.
const DefaultEraseAttempts = 3

// ErrEraseFailed reports that the sentinel could not be written.
var ErrEraseFailed = errors.New("flash: sentinel erase failed")

// Eraser overwrites the sentinel region with erased bytes.
type Eraser struct {
	store    Storage
	addr     uint32
	size     int
	attempts int
	log      zerolog.Logger
}

func NewEraser(store Storage, log zerolog.Logger) *Eraser {
	return &Eraser{
		store:    store,
		addr:     SentinelAddr,
		size:     SentinelSize,
		attempts: DefaultEraseAttempts,
		log:      log,
	}
}

// Erase writes SentinelSize bytes of 0xFF at SentinelAddr.
func (e *Eraser) Erase() error {
	data := bytes.Repeat([]byte{Erased}, e.size)

	var err error
	for attempt := 1; attempt <= e.attempts; attempt++ {
		if err = e.store.Write(e.addr, data); err == nil {
			e.log.Info().
				Str("addr", fmt.Sprintf("%#x", e.addr)).
				Hex("bytes", data).
				Msg("sentinel written")
			return nil
		}
		e.log.Warn().Err(err).Int("attempt", attempt).Msg("sentinel write failed")
	}
	return fmt.Errorf("%w at %#x: %v", ErrEraseFailed, e.addr, err)
}
