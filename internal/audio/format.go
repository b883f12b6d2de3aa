package audio

import (
	"errors"
	"fmt"
)

// TargetBitDepth is the sample width of every file loopcap writes.
const TargetBitDepth = 16

var ErrUnsupportedFormat = errors.New("unsupported sample format")

// Format describes an interleaved PCM stream.
type Format struct {
	Channels   uint32
	SampleRate uint32
	BitDepth   uint32
	Float      bool
}

// Target returns the 16-bit integer format written to disk for a stream in f.
// Channel count and sample rate are carried over unchanged.
func (f Format) Target() Format {
	return Format{
		Channels:   f.Channels,
		SampleRate: f.SampleRate,
		BitDepth:   TargetBitDepth,
	}
}

func (f Format) BytesPerSample() uint32 {
	return f.BitDepth / 8
}

func (f Format) BlockAlign() uint32 {
	return f.Channels * f.BitDepth / 8
}

func (f Format) ByteRate() uint32 {
	return f.SampleRate * f.BlockAlign()
}

// Validate reports whether the sample pipeline can consume f.
// Float streams must be 32-bit, integer streams must already be 16-bit.
func (f Format) Validate() error {
	if f.Channels == 0 {
		return fmt.Errorf("%w: zero channels", ErrUnsupportedFormat)
	}
	if f.SampleRate == 0 {
		return fmt.Errorf("%w: zero sample rate", ErrUnsupportedFormat)
	}
	if f.Float && f.BitDepth != 32 {
		return fmt.Errorf("%w: %d-bit float", ErrUnsupportedFormat, f.BitDepth)
	}
	if !f.Float && f.BitDepth != TargetBitDepth {
		return fmt.Errorf("%w: %d-bit integer", ErrUnsupportedFormat, f.BitDepth)
	}
	return nil
}

func (f Format) String() string {
	kind := "int"
	if f.Float {
		kind = "float"
	}
	return fmt.Sprintf("%dHz %dch %d-bit %s", f.SampleRate, f.Channels, f.BitDepth, kind)
}
