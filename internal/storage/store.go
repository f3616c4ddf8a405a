// Package storage provides the small byte-addressable settings store that
// survives restarts. It mimics an EEPROM: a fixed-size image that callers
// read and write by offset and must Commit explicitly.
package storage

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	// Size of the backing image in bytes.
	Size = 512

	// Fixed offsets.
	ColorModeAddr     = 0
	TransportModeAddr = 1
	ConfigAddr        = 10

	blank = 0xFF
)

// ErrOutOfRange is returned for reads or writes past the end of the image.
var ErrOutOfRange = errors.New("storage: offset out of range")

// Store is a file-backed byte image. Writes stay in memory until Commit.
type Store struct {
	mu    sync.Mutex
	path  string
	data  [Size]byte
	dirty bool
}

// Open loads the image at path. A missing file yields a blank image filled
// with 0xFF, the erased state of real EEPROM.
func Open(path string) (*Store, error) {
	s := &Store{path: path}
	for i := range s.data {
		s.data[i] = blank
	}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		log.Infof("[storage] no image at %s, starting blank", path)
		return s, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "storage: open %s", path)
	}
	defer f.Close()

	n, err := io.ReadFull(f, s.data[:])
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, errors.Wrapf(err, "storage: read %s", path)
	}
	log.Infof("[storage] loaded %d bytes from %s", n, path)
	return s, nil
}

// ReadAt implements io.ReaderAt over the in-memory image.
func (s *Store) ReadAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if off < 0 || off+int64(len(p)) > Size {
		return 0, ErrOutOfRange
	}
	return copy(p, s.data[off:]), nil
}

// WriteAt implements io.WriterAt. The change is not durable until Commit.
func (s *Store) WriteAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if off < 0 || off+int64(len(p)) > Size {
		return 0, ErrOutOfRange
	}
	n := copy(s.data[off:], p)
	s.dirty = true
	return n, nil
}

// Byte returns the byte at addr, or the blank value when out of range.
func (s *Store) Byte(addr int) byte {
	var b [1]byte
	if _, err := s.ReadAt(b[:], int64(addr)); err != nil {
		return blank
	}
	return b[0]
}

// SetByte stores one byte at addr.
func (s *Store) SetByte(addr int, v byte) error {
	_, err := s.WriteAt([]byte{v}, int64(addr))
	return err
}

// Commit writes the image to disk atomically. It is a no-op when nothing
// changed since the last commit.
func (s *Store) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return errors.Wrap(err, "storage: create dir")
	}
	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return errors.Wrap(err, "storage: create temp")
	}
	if _, err := f.Write(s.data[:]); err != nil {
		f.Close()
		return errors.Wrap(err, "storage: write temp")
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errors.Wrap(err, "storage: sync")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "storage: close temp")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "storage: rename")
	}
	s.dirty = false
	return nil
}
