//go:build !cgo

package audio

import "errors"

var errNoCgo = errors.New("loopback capture requires a cgo build")

type LoopbackStream struct{}

func OpenLoopback(LoopbackOptions) (*LoopbackStream, error) {
	return nil, &DeviceError{Kind: ServiceUnavailable, Op: "init audio context", Err: errNoCgo}
}

func (s *LoopbackStream) Format() Format { return Format{} }
func (s *LoopbackStream) DeviceName() string { return "" }
func (s *LoopbackStream) Start() error { return ErrStreamClosed }
func (s *LoopbackStream) Stop() error { return nil }
func (s *LoopbackStream) NextPacketSize() (uint32, error) { return 0, ErrStreamClosed }
func (s *LoopbackStream) GetBuffer() (Packet, error) { return Packet{}, ErrStreamClosed }
func (s *LoopbackStream) ReleaseBuffer(uint32) error { return ErrOutOfOrder }
func (s *LoopbackStream) Dropped() uint64 { return 0 }
func (s *LoopbackStream) Close() error { return nil }
