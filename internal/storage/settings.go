package storage

import "github.com/pkg/errors"

// Settings reads and writes the two single-byte flags kept outside the
// layout block. Every setter commits immediately.
type Settings struct {
	store *Store
}

func NewSettings(s *Store) *Settings {
	return &Settings{store: s}
}

// FullColor reports whether threshold coloring is enabled. Only an explicit 1
// enables it, so blank storage means basic mode.
func (s *Settings) FullColor() bool {
	return s.store.Byte(ColorModeAddr) == 1
}

func (s *Settings) SetFullColor(on bool) error {
	var v byte
	if on {
		v = 1
	}
	return s.put(ColorModeAddr, v)
}

// ToggleFullColor flips the color mode and returns the new value.
func (s *Settings) ToggleFullColor() (bool, error) {
	on := !s.FullColor()
	return on, s.SetFullColor(on)
}

// TransportMode returns the raw stored transport byte. Callers map it to
// their own mode type; blank storage reads 0xFF.
func (s *Settings) TransportMode() byte {
	return s.store.Byte(TransportModeAddr)
}

func (s *Settings) SetTransportMode(m byte) error {
	return s.put(TransportModeAddr, m)
}

func (s *Settings) put(addr int, v byte) error {
	if err := s.store.SetByte(addr, v); err != nil {
		return err
	}
	return errors.Wrap(s.store.Commit(), "storage: commit flag")
}
