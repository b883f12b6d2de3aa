package capture

import (
	"sync/atomic"
	"time"

	"github.com/Avicted/loopcap/internal/audio"
	"github.com/Avicted/loopcap/internal/control"
)

type State int32

const (
	Starting State = iota
	Running
	Draining
	Stopped
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Draining:
		return "draining"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Stats are updated by the capture loop and may be read concurrently.
type Stats struct {
	bytes           atomic.Uint64
	packets         atomic.Uint64
	silentPackets   atomic.Uint64
	discontinuities atomic.Uint64
	shortPackets    atomic.Uint64
	acquireFailures atomic.Uint64
	releaseFailures atomic.Uint64
}

func (s *Stats) Bytes() uint64 {
	return s.bytes.Load()
}

func (s *Stats) Packets() uint64 {
	return s.packets.Load()
}

func (s *Stats) Discontinuities() uint64 {
	return s.discontinuities.Load()
}

func (s *Stats) snapshot() Result {
	return Result{
		Bytes:           s.bytes.Load(),
		Packets:         s.packets.Load(),
		SilentPackets:   s.silentPackets.Load(),
		Discontinuities: s.discontinuities.Load(),
		ShortPackets:    s.shortPackets.Load(),
		AcquireFailures: s.acquireFailures.Load(),
		ReleaseFailures: s.releaseFailures.Load(),
	}
}

// Result summarizes a finished session.
type Result struct {
	Path   string
	Format audio.Format
	Target audio.Format

	Bytes           uint64
	Packets         uint64
	SilentPackets   uint64
	Discontinuities uint64
	ShortPackets    uint64
	DroppedPackets  uint64
	AcquireFailures uint64
	ReleaseFailures uint64

	StopReason control.Reason
	Duration   time.Duration
}
