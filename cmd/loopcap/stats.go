package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/Avicted/loopcap/internal/capture"
)

type statsReporter struct {
	id      string
	session *capture.Session

	lastBytes   uint64
	lastPackets uint64
	lastGaps    uint64
}

func newStatsReporter(id string, session *capture.Session) *statsReporter {
	return &statsReporter{id: id, session: session}
}

func (r *statsReporter) LogLoop(ctx context.Context, interval time.Duration) {
	if r == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Printf("%s", r.line(interval))
		}
	}
}

// line reports the activity since the previous call.
func (r *statsReporter) line(interval time.Duration) string {
	stats := r.session.Stats()
	bytes := stats.Bytes()
	packets := stats.Packets()
	gaps := stats.Discontinuities()

	kbps := float64((bytes-r.lastBytes)*8) / interval.Seconds() / 1000.0
	line := fmt.Sprintf("capture stats: session=%s state=%s kbps=%.1f packets=%d discontinuities=%d bytes=%d",
		r.id, r.session.State(), kbps, packets-r.lastPackets, gaps-r.lastGaps, bytes)
	r.lastBytes, r.lastPackets, r.lastGaps = bytes, packets, gaps
	return line
}
