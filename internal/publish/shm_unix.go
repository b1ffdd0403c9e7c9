//go:build unix

package publish

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"runtime"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"gpsclock/internal/gps"
)

// Shared segment layout, little endian:
//
//	0  magic "GPSP"
//	4  version uint32
//	8  sequence uint64, odd while a write is in progress
//	16 lon, lat, alt float64
//	40 gps time, sys time int64 unix nanoseconds
//	56 flags uint32
const (
	shmMagic   = "GPSP"
	shmVersion = 1
	shmSize    = 64

	offVersion = 4
	offSeq     = 8
	offLon     = 16
	offLat     = 24
	offAlt     = 32
	offGPSTime = 40
	offSysTime = 48
	offFlags   = 56

	flagXY    = 1 << 0
	flagZ     = 1 << 1
	flagT     = 1 << 2
	flagStale = 1 << 3

	shmReadAttempts = 100
)

var errTornRead = errors.New("shm: writer kept the segment busy")

type shmSegment struct {
	f   *os.File
	mem []byte
}

func (s *shmSegment) seq() *uint64 {
	return (*uint64)(unsafe.Pointer(&s.mem[offSeq]))
}

func (s *shmSegment) Close() error {
	err := unix.Munmap(s.mem)
	if cerr := s.f.Close(); err == nil {
		err = cerr
	}
	return err
}

type shmPublisher struct {
	shmSegment
}

func openSHM(path string) (Publisher, error) {
	if path == "" {
		path = "/dev/shm/gpsclock"
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(shmSize); err != nil {
		_ = f.Close()
		return nil, err
	}
	mem, err := unix.Mmap(int(f.Fd()), 0, shmSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}

	p := &shmPublisher{shmSegment{f: f, mem: mem}}
	if string(mem[:4]) != shmMagic || binary.LittleEndian.Uint32(mem[offVersion:]) != shmVersion {
		for i := range mem {
			mem[i] = 0
		}
		copy(mem, shmMagic)
		binary.LittleEndian.PutUint32(mem[offVersion:], shmVersion)
	}
	// A writer that died mid-update leaves an odd sequence.
	if seq := atomic.LoadUint64(p.seq()); seq%2 == 1 {
		atomic.StoreUint64(p.seq(), seq+1)
	}
	log.Printf("publish shm path=%s size=%d", path, shmSize)
	return p, nil
}

func (p *shmPublisher) Update(pos gps.Position) error {
	seq := p.seq()
	atomic.AddUint64(seq, 1)
	le := binary.LittleEndian
	le.PutUint64(p.mem[offLon:], math.Float64bits(pos.Lon))
	le.PutUint64(p.mem[offLat:], math.Float64bits(pos.Lat))
	le.PutUint64(p.mem[offAlt:], math.Float64bits(pos.Alt))
	le.PutUint64(p.mem[offGPSTime:], uint64(unixNano(pos.GPSTime)))
	le.PutUint64(p.mem[offSysTime:], uint64(unixNano(pos.SysTime)))
	le.PutUint32(p.mem[offFlags:], flagsOf(pos))
	atomic.AddUint64(seq, 1)
	return nil
}

type shmSubscriber struct {
	shmSegment
}

func subscribeSHM(path string) (Subscriber, error) {
	if path == "" {
		path = "/dev/shm/gpsclock"
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	mem, err := unix.Mmap(int(f.Fd()), 0, shmSize, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	s := &shmSubscriber{shmSegment{f: f, mem: mem}}
	if string(mem[:4]) != shmMagic || binary.LittleEndian.Uint32(mem[offVersion:]) != shmVersion {
		_ = s.Close()
		return nil, fmt.Errorf("%s is not a position segment", path)
	}
	return s, nil
}

func (s *shmSubscriber) Current() (gps.Position, error) {
	seq := s.seq()
	le := binary.LittleEndian
	for i := 0; i < shmReadAttempts; i++ {
		before := atomic.LoadUint64(seq)
		if before == 0 {
			return gps.Position{}, ErrNoData
		}
		if before%2 == 1 {
			runtime.Gosched()
			continue
		}
		flags := le.Uint32(s.mem[offFlags:])
		pos := gps.Position{
			Lon:     math.Float64frombits(le.Uint64(s.mem[offLon:])),
			Lat:     math.Float64frombits(le.Uint64(s.mem[offLat:])),
			Alt:     math.Float64frombits(le.Uint64(s.mem[offAlt:])),
			GPSTime: fromUnixNano(int64(le.Uint64(s.mem[offGPSTime:]))),
			SysTime: fromUnixNano(int64(le.Uint64(s.mem[offSysTime:]))),
			XYValid: flags&flagXY != 0,
			ZValid:  flags&flagZ != 0,
			TValid:  flags&flagT != 0,
			Stale:   flags&flagStale != 0,
		}
		if atomic.LoadUint64(seq) == before {
			return pos, nil
		}
	}
	return gps.Position{}, errTornRead
}

func flagsOf(pos gps.Position) uint32 {
	var f uint32
	if pos.XYValid {
		f |= flagXY
	}
	if pos.ZValid {
		f |= flagZ
	}
	if pos.TValid {
		f |= flagT
	}
	if pos.Stale {
		f |= flagStale
	}
	return f
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}
