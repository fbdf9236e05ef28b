// Package storage holds the disk admission gate, the C-STORE writer and
// the archive mirror.
package storage

import (
	"fmt"
	"log"

	"golang.org/x/sys/unix"
)

const oneGB = 1_000_000_000

// StatFn reports total and free bytes of the filesystem holding path.
type StatFn func(path string) (total, free uint64, err error)

func diskStat(path string) (uint64, uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, 0, err
	}
	bsize := uint64(st.Bsize)
	return st.Blocks * bsize, st.Bavail * bsize, nil
}

// AdmissionGate decides whether the storage volume has room for more
// work. The reserved threshold is computed once at startup; the free
// figure is re-read on every check.
type AdmissionGate struct {
	path     string
	reserved uint64
	stat     StatFn
}

// NewAdmissionGate probes the volume holding path and fixes the
// reserved threshold at the larger of the watermark slack
// (total * (1 - watermark/100)) and the absolute reserve. An
// unresolvable path is a configuration error and is returned as such.
func NewAdmissionGate(path string, watermark float64, reserveGB uint64) (*AdmissionGate, error) {
	return newAdmissionGate(path, watermark, reserveGB, diskStat)
}

func newAdmissionGate(path string, watermark float64, reserveGB uint64, stat StatFn) (*AdmissionGate, error) {
	total, free, err := stat(path)
	if err != nil {
		return nil, fmt.Errorf("resolving storage volume for %q: %w", path, err)
	}
	reserved := uint64(float64(total) * (1 - watermark/100))
	if abs := reserveGB * oneGB; abs > reserved {
		reserved = abs
	}
	log.Printf("Storage: volume for %s: total=%d free=%d reserved=%d (watermark=%.0f%%, reserve=%dGB)",
		path, total, free, reserved, watermark, reserveGB)
	return &AdmissionGate{path: path, reserved: reserved, stat: stat}, nil
}

// IsSpaceAvailable reports whether free space strictly exceeds the
// reserved threshold. Stat failures after startup are treated as no
// space.
func (g *AdmissionGate) IsSpaceAvailable() bool {
	total, free, err := g.stat(g.path)
	if err != nil {
		log.Printf("Storage: re-reading volume stats for %s: %v", g.path, err)
		return false
	}
	if free <= g.reserved {
		log.Printf("Storage: volume for %s is low: total=%d reserved=%d free=%d", g.path, total, g.reserved, free)
		return false
	}
	return true
}

// HasSpaceToStore gates inbound C-STORE and STOW traffic.
func (g *AdmissionGate) HasSpaceToStore() bool { return g.IsSpaceAvailable() }

// HasSpaceToRetrieve gates the retrieval orchestrator.
func (g *AdmissionGate) HasSpaceToRetrieve() bool { return g.IsSpaceAvailable() }

// HasSpaceForExport gates outbound export work.
func (g *AdmissionGate) HasSpaceForExport() bool { return g.IsSpaceAvailable() }

// AvailableFreeSpace returns the current free bytes, zero if the volume
// cannot be read.
func (g *AdmissionGate) AvailableFreeSpace() uint64 {
	_, free, err := g.stat(g.path)
	if err != nil {
		return 0
	}
	return free
}

// ReservedBytes returns the threshold fixed at startup.
func (g *AdmissionGate) ReservedBytes() uint64 { return g.reserved }
