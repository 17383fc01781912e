package flash

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func testStorage(t *testing.T, st Storage) {
	t.Helper()

	buf := make([]byte, 8)
	if err := st.Read(0x100, buf); err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if !bytes.Equal(buf, bytes.Repeat([]byte{Erased}, 8)) {
		t.Fatalf("unwritten flash not erased: %x", buf)
	}

	data := []byte{1, 2, 3, 4, 5, 6}
	off := uint32(PageSize - 3)
	if err := st.Write(off, data); err != nil {
		t.Fatalf("Write across page boundary returned error: %v", err)
	}
	got := make([]byte, 8)
	if err := st.Read(off-1, got); err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	want := []byte{Erased, 1, 2, 3, 4, 5, 6, Erased}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %x want %x", got, want)
	}

	if err := st.Write(st.Capacity()-2, []byte{1, 2, 3}); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange for write, got %v", err)
	}
	if err := st.Read(st.Capacity(), make([]byte, 1)); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange for read, got %v", err)
	}
}

func TestMemoryStorage(t *testing.T) {
	testStorage(t, NewMemory(DefaultCapacity))
}

func TestBoltStorage(t *testing.T) {
	st, err := OpenBolt(filepath.Join(t.TempDir(), "flash.db"), DefaultCapacity)
	if err != nil {
		t.Fatalf("OpenBolt returned error: %v", err)
	}
	defer st.Close()
	testStorage(t, st)
}

func TestBoltStoragePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flash.db")
	st, err := OpenBolt(path, DefaultCapacity)
	if err != nil {
		t.Fatalf("OpenBolt returned error: %v", err)
	}
	if err := st.Write(SentinelAddr, []byte{0xA5, 0x5A}); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	st, err = OpenBolt(path, DefaultCapacity)
	if err != nil {
		t.Fatalf("reopen returned error: %v", err)
	}
	defer st.Close()
	got := make([]byte, 3)
	if err := st.Read(SentinelAddr, got); err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if !bytes.Equal(got, []byte{0xA5, 0x5A, Erased}) {
		t.Fatalf("unexpected persisted bytes %x", got)
	}
}

func TestLoadHex(t *testing.T) {
	image := ":04D00000DEADBEEFF4\n:00000001FF\n"
	st := NewMemory(DefaultCapacity)

	n, err := LoadHex(st, strings.NewReader(image))
	if err != nil {
		t.Fatalf("LoadHex returned error: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4 bytes loaded, got %d", n)
	}
	got := make([]byte, 4)
	if err := st.Read(0xD000, got); err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if !bytes.Equal(got, []byte{0xDE, 0xAD, 0xBE, 0xEF}) {
		t.Fatalf("unexpected image bytes %x", got)
	}

	if _, err := LoadHex(st, strings.NewReader(":zz\n")); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestDumpHexRoundTrip(t *testing.T) {
	src := NewMemory(DefaultCapacity)
	if err := src.Write(0x2000, []byte("sentinel")); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}

	var image bytes.Buffer
	if err := DumpHex(src, &image, 0x2000, 8); err != nil {
		t.Fatalf("DumpHex returned error: %v", err)
	}

	dst := NewMemory(DefaultCapacity)
	if _, err := LoadHex(dst, &image); err != nil {
		t.Fatalf("LoadHex returned error: %v", err)
	}
	got := make([]byte, 8)
	if err := dst.Read(0x2000, got); err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if string(got) != "sentinel" {
		t.Fatalf("round trip mismatch: %q", got)
	}
}
