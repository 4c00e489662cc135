// Package sector wraps a cursor.Cursor behind a mutex, offering typed
// little-endian reads and writes at either an absolute offset or the
// manager's own sequential position. It is the only layer above cursor
// that is safe for concurrent use.
package sector

import (
	"encoding/binary"
	"sync"

	"github.com/kestrelfs/ccfs/cursor"
)

// Manager serializes access to a single cursor.Cursor and exposes
// fixed-width little-endian accessors on top of its raw byte I/O.
type Manager struct {
	mu     sync.Mutex
	cursor *cursor.Cursor
}

// NewManager wraps c behind a mutex.
func NewManager(c *cursor.Cursor) *Manager {
	return &Manager{cursor: c}
}

// SectorSize returns the device's block size in bytes.
func (m *Manager) SectorSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sectorSizeLocked()
}

func (m *Manager) sectorSizeLocked() int {
	return m.cursor.BlockSize()
}

// SectorCount returns the total addressable size of the device, in bytes.
func (m *Manager) SectorCount() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor.Size()
}

// Position returns the manager's current sequential read/write position.
func (m *Manager) Position() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor.Position()
}

// SetPosition moves the manager's sequential position without performing
// any I/O.
func (m *Manager) SetPosition(globalOffset uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursor.SetPosition(globalOffset)
}

// ReadSectorAt reads len(buf) bytes from globalOffset, leaving the
// manager's sequential position unchanged.
func (m *Manager) ReadSectorAt(globalOffset uint64, buf []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor.ReadAt(globalOffset, buf)
}

// WriteSectorAt writes buf at globalOffset, leaving the manager's
// sequential position unchanged.
func (m *Manager) WriteSectorAt(globalOffset uint64, buf []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor.WriteAt(globalOffset, buf)
}

// Read8 reads a single byte at globalOffset.
func (m *Manager) Read8(globalOffset uint64) (uint8, error) {
	var buf [1]byte
	if _, err := m.ReadSectorAt(globalOffset, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// Read16 reads a little-endian uint16 at globalOffset.
func (m *Manager) Read16(globalOffset uint64) (uint16, error) {
	var buf [2]byte
	if _, err := m.ReadSectorAt(globalOffset, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf[:]), nil
}

// Read32 reads a little-endian uint32 at globalOffset.
func (m *Manager) Read32(globalOffset uint64) (uint32, error) {
	var buf [4]byte
	if _, err := m.ReadSectorAt(globalOffset, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// Read8Seq reads one byte at the manager's sequential position, advancing it.
func (m *Manager) Read8Seq() (uint8, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var buf [1]byte
	if _, err := m.cursor.Read(buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// Read16Seq reads a little-endian uint16 at the sequential position,
// advancing it.
func (m *Manager) Read16Seq() (uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var buf [2]byte
	if _, err := m.cursor.Read(buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf[:]), nil
}

// Read32Seq reads a little-endian uint32 at the sequential position,
// advancing it.
func (m *Manager) Read32Seq() (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var buf [4]byte
	if _, err := m.cursor.Read(buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// ReadSectorSeq reads one full sector's worth of bytes at the sequential
// position, advancing it.
func (m *Manager) ReadSectorSeq() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := make([]byte, m.sectorSizeLocked())
	if _, err := m.cursor.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Write8 writes a single byte at globalOffset.
func (m *Manager) Write8(globalOffset uint64, data uint8) error {
	_, err := m.WriteSectorAt(globalOffset, []byte{data})
	return err
}

// Write16 writes a little-endian uint16 at globalOffset.
func (m *Manager) Write16(globalOffset uint64, data uint16) error {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], data)
	_, err := m.WriteSectorAt(globalOffset, buf[:])
	return err
}

// Write32 writes a little-endian uint32 at globalOffset.
func (m *Manager) Write32(globalOffset uint64, data uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], data)
	_, err := m.WriteSectorAt(globalOffset, buf[:])
	return err
}

// Write8Seq writes one byte at the sequential position, advancing it.
func (m *Manager) Write8Seq(data uint8) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.cursor.Write([]byte{data})
	return err
}

// Write16Seq writes a little-endian uint16 at the sequential position,
// advancing it.
func (m *Manager) Write16Seq(data uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], data)
	_, err := m.cursor.Write(buf[:])
	return err
}

// Write32Seq writes a little-endian uint32 at the sequential position,
// advancing it.
func (m *Manager) Write32Seq(data uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], data)
	_, err := m.cursor.Write(buf[:])
	return err
}

// WriteSectorSeq writes buf at the sequential position, advancing it.
func (m *Manager) WriteSectorSeq(buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.cursor.Write(buf)
	return err
}
