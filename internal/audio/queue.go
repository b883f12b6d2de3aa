package audio

import (
	"errors"
	"sync"
)

var ErrNoData = errors.New("no packet available")

// packetQueue buffers device deliveries between the audio thread and the
// polling capture loop. It holds at most maxFrames frames; deliveries that
// do not fit are dropped and the next accepted packet is flagged as a
// discontinuity.
type packetQueue struct {
	mu sync.Mutex

	packets   []Packet
	frames    uint64
	maxFrames uint64

	discontinuity bool
	dropped       uint64

	held       bool
	heldFrames uint32
	closed     bool
}

func newPacketQueue(maxFrames uint64) *packetQueue {
	return &packetQueue{maxFrames: maxFrames}
}

func (q *packetQueue) setLimit(maxFrames uint64) {
	q.mu.Lock()
	q.maxFrames = maxFrames
	q.mu.Unlock()
}

func (q *packetQueue) push(data []byte, frames uint32) {
	if frames == 0 || len(data) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	if q.frames+uint64(frames) > q.maxFrames {
		q.dropped++
		q.discontinuity = true
		return
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	var flags PacketFlags
	if q.discontinuity {
		flags |= FlagDiscontinuity
		q.discontinuity = false
	}
	q.packets = append(q.packets, Packet{Frames: frames, Data: buf, Flags: flags})
	q.frames += uint64(frames)
}

func (q *packetQueue) nextPacketSize() (uint32, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return 0, ErrStreamClosed
	}
	if len(q.packets) == 0 {
		return 0, nil
	}
	return q.packets[0].Frames, nil
}

func (q *packetQueue) get() (Packet, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return Packet{}, ErrStreamClosed
	}
	if q.held {
		return Packet{}, ErrOutOfOrder
	}
	if len(q.packets) == 0 {
		return Packet{}, ErrNoData
	}
	p := q.packets[0]
	q.held = true
	q.heldFrames = p.Frames
	return p, nil
}

func (q *packetQueue) release(frames uint32) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.held || frames != q.heldFrames {
		return ErrOutOfOrder
	}
	q.packets[0] = Packet{}
	q.packets = q.packets[1:]
	q.frames -= uint64(frames)
	q.held = false
	q.heldFrames = 0
	return nil
}

func (q *packetQueue) droppedCount() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

func (q *packetQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.packets = nil
	q.frames = 0
	q.held = false
}
