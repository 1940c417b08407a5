package sealreg

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"syscall"
)

// fileStore implements Store using a POSIX file with append-only semantics.
// One fixed-size entry per sealed record in seals.dat:
//
//	[4]byte: mono count
//	[1]byte: sensor id
//	[1]byte: session id
//	[4]byte: value
//	[2]byte: crc16
//
// All fields big-endian. Entry order is arrival order, which keeps
// iteration well-defined across the mono counter's 2^32 wrap.
type fileStore struct {
	dir  string
	file *os.File
	mu   sync.RWMutex
}

const (
	sealsFileName = "seals.dat"
	sealEntrySize = 4 + 1 + 1 + 4 + 2
)

// OpenFileStore creates or opens a file-based store in the given directory.
func OpenFileStore(dir string) (Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	path := filepath.Join(dir, sealsFileName)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("open seals file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat seals file: %w", err)
	}
	if info.Size()%sealEntrySize != 0 {
		_ = f.Close()
		return nil, fmt.Errorf("seals file corrupt: size %d not a multiple of %d",
			info.Size(), sealEntrySize)
	}

	return &fileStore{dir: dir, file: f}, nil
}

func encodeSeal(buf []byte, r SealedRecord) {
	buf[0] = byte(r.MonoCount >> 24)
	buf[1] = byte(r.MonoCount >> 16)
	buf[2] = byte(r.MonoCount >> 8)
	buf[3] = byte(r.MonoCount)
	buf[4] = r.SensorID
	buf[5] = r.SessionID
	buf[6] = byte(r.Value >> 24)
	buf[7] = byte(r.Value >> 16)
	buf[8] = byte(r.Value >> 8)
	buf[9] = byte(r.Value)
	buf[10] = byte(r.CRC16 >> 8)
	buf[11] = byte(r.CRC16)
}

func decodeSeal(buf []byte) SealedRecord {
	return SealedRecord{
		MonoCount: uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3]),
		SensorID:  buf[4],
		SessionID: buf[5],
		Value:     uint32(buf[6])<<24 | uint32(buf[7])<<16 | uint32(buf[8])<<8 | uint32(buf[9]),
		CRC16:     uint16(buf[10])<<8 | uint16(buf[11]),
	}
}

// Append writes one record after checking it continues the stored
// sequence: one past the tail, with the 2^32 wrap a legal step. An empty
// store accepts any starting mono.
func (s *fileStore) Append(r SealedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tail, ok, err := s.tailLocked()
	if err != nil {
		return err
	}
	if ok {
		want := tail.MonoCount + 1 // wraps at 2^32
		if r.MonoCount != want {
			return fmt.Errorf("%w: have %d, got %d", ErrSeqGap, tail.MonoCount, r.MonoCount)
		}
	}

	if err := syscall.Flock(int(s.file.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("lock seals file: %w", err)
	}
	defer syscall.Flock(int(s.file.Fd()), syscall.LOCK_UN)

	var buf [sealEntrySize]byte
	encodeSeal(buf[:], r)
	n, err := s.file.Write(buf[:])
	if err != nil {
		return fmt.Errorf("write seal: %w", err)
	}
	if n != sealEntrySize {
		return fmt.Errorf("incomplete write: %d of %d bytes", n, sealEntrySize)
	}

	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync seals file: %w", err)
	}
	return nil
}

// Iter streams records in arrival order starting from the first occurrence
// of startMono. An unknown startMono yields an empty stream.
func (s *fileStore) Iter(startMono uint32) (<-chan SealedRecord, func() error, error) {
	s.mu.RLock()
	f, err := os.Open(filepath.Join(s.dir, sealsFileName))
	s.mu.RUnlock()
	if err != nil {
		return nil, nil, fmt.Errorf("open seals file: %w", err)
	}

	out := make(chan SealedRecord, 64)
	stop := make(chan struct{})
	errc := make(chan error, 1)
	var stopOnce sync.Once

	go func() {
		defer close(out)
		defer f.Close()

		var buf [sealEntrySize]byte
		started := false
		for {
			_, err := io.ReadFull(f, buf[:])
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				errc <- fmt.Errorf("read seal: %w", err)
				return
			}
			r := decodeSeal(buf[:])
			if !started {
				if r.MonoCount != startMono {
					continue
				}
				started = true
			}
			select {
			case out <- r:
			case <-stop:
				return
			}
		}
	}()

	// done stops iteration; call it after draining the channel to observe a
	// read error.
	return out, func() error {
		stopOnce.Do(func() { close(stop) })
		select {
		case err := <-errc:
			return err
		default:
			return nil
		}
	}, nil
}

func (s *fileStore) tailLocked() (SealedRecord, bool, error) {
	info, err := s.file.Stat()
	if err != nil {
		return SealedRecord{}, false, fmt.Errorf("stat seals file: %w", err)
	}
	if info.Size() == 0 {
		return SealedRecord{}, false, nil
	}

	var buf [sealEntrySize]byte
	if _, err := s.file.ReadAt(buf[:], info.Size()-sealEntrySize); err != nil {
		return SealedRecord{}, false, fmt.Errorf("read tail: %w", err)
	}
	return decodeSeal(buf[:]), true, nil
}

// Tail returns the most recently appended record.
func (s *fileStore) Tail() (SealedRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tailLocked()
}

// Count reports how many records are stored.
func (s *fileStore) Count() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, err := s.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat seals file: %w", err)
	}
	return uint64(info.Size()) / sealEntrySize, nil
}

// Close closes the underlying file.
func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
