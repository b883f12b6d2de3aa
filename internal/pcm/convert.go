// Package pcm turns device packets into the 16-bit little-endian samples
// stored in the output file.
package pcm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/Avicted/loopcap/internal/audio"
)

const fullScale = 32767.0

var ErrShortPacket = errors.New("packet shorter than its frame count")

// Converter maps packets in a source format onto a 16-bit integer target.
type Converter struct {
	src audio.Format
	dst audio.Format
}

func NewConverter(src, dst audio.Format) (*Converter, error) {
	if err := src.Validate(); err != nil {
		return nil, fmt.Errorf("source format: %w", err)
	}
	if dst.Float || dst.BitDepth != audio.TargetBitDepth || dst.Channels == 0 {
		return nil, fmt.Errorf("target format %s: %w", dst, audio.ErrUnsupportedFormat)
	}
	if dst.SampleRate != src.SampleRate {
		return nil, fmt.Errorf("target rate %d differs from source rate %d: %w", dst.SampleRate, src.SampleRate, audio.ErrUnsupportedFormat)
	}
	return &Converter{src: src, dst: dst}, nil
}

// OutputSize is the number of bytes Convert appends for a packet of frames.
func (c *Converter) OutputSize(frames uint32) int {
	return int(frames) * int(c.dst.BlockAlign())
}

// Convert appends the target representation of p to dst and returns the
// extended slice.
func (c *Converter) Convert(dst []byte, p audio.Packet) ([]byte, error) {
	if p.Flags.Has(audio.FlagSilent) {
		return appendZeros(dst, c.OutputSize(p.Frames)), nil
	}

	need := int(p.Frames) * int(c.src.BlockAlign())
	if len(p.Data) < need {
		return dst, fmt.Errorf("%w: have %d bytes, need %d", ErrShortPacket, len(p.Data), need)
	}
	raw := p.Data[:need]

	if c.src.Float {
		return c.appendFloat(dst, raw, p.Frames), nil
	}
	if c.src.Channels == c.dst.Channels {
		return append(dst, raw...), nil
	}
	return c.appendSelected(dst, raw, p.Frames), nil
}

func (c *Converter) appendFloat(dst, raw []byte, frames uint32) []byte {
	srcChannels := int(c.src.Channels)
	channels := min(srcChannels, int(c.dst.Channels))
	stride := srcChannels * 4

	out, tail := grow(dst, int(frames)*channels*2)
	for i := 0; i < int(frames); i++ {
		frame := raw[i*stride:]
		for ch := 0; ch < channels; ch++ {
			sample := math.Float32frombits(binary.LittleEndian.Uint32(frame[ch*4:]))
			binary.LittleEndian.PutUint16(tail, uint16(FloatToInt16(sample)))
			tail = tail[2:]
		}
	}
	return out
}

func (c *Converter) appendSelected(dst, raw []byte, frames uint32) []byte {
	srcStride := int(c.src.BlockAlign())
	channels := min(int(c.src.Channels), int(c.dst.Channels))
	width := channels * 2

	out, tail := grow(dst, int(frames)*width)
	for i := 0; i < int(frames); i++ {
		copy(tail, raw[i*srcStride:i*srcStride+width])
		tail = tail[width:]
	}
	return out
}

// FloatToInt16 clamps s to [-1, 1], scales by 32767 and truncates toward
// zero. -1.0 maps to -32767, never -32768. NaN maps to 0.
func FloatToInt16(s float32) int16 {
	if s != s {
		return 0
	}
	if s > 1 {
		s = 1
	}
	if s < -1 {
		s = -1
	}
	return int16(s * fullScale)
}

func appendZeros(dst []byte, n int) []byte {
	out, tail := grow(dst, n)
	clear(tail)
	return out
}

// grow extends dst by n bytes and returns the extended slice together with
// the newly added region.
func grow(dst []byte, n int) ([]byte, []byte) {
	start := len(dst)
	if cap(dst)-start < n {
		next := make([]byte, start, start+n)
		copy(next, dst)
		dst = next
	}
	dst = dst[:start+n]
	return dst, dst[start:]
}
