package audio

import "time"

const (
	DefaultBufferDuration = time.Second
	DefaultPeriodDuration = 10 * time.Millisecond
)

// LoopbackOptions tune the loopback stream. Zero values select the defaults.
type LoopbackOptions struct {
	// BufferDuration bounds how much audio is queued between polls before
	// deliveries are dropped.
	BufferDuration time.Duration
	// PeriodDuration is the device period requested from the backend.
	PeriodDuration time.Duration
}

func (o LoopbackOptions) withDefaults() LoopbackOptions {
	if o.BufferDuration <= 0 {
		o.BufferDuration = DefaultBufferDuration
	}
	if o.PeriodDuration <= 0 {
		o.PeriodDuration = DefaultPeriodDuration
	}
	return o
}

func bufferFrames(sampleRate uint32, d time.Duration) uint64 {
	return uint64(sampleRate) * uint64(d) / uint64(time.Second)
}
