package audio

import (
	"errors"
	"fmt"
)

type PacketFlags uint32

const (
	FlagSilent PacketFlags = 1 << iota
	FlagDiscontinuity
	FlagTimestampError
)

func (f PacketFlags) Has(flag PacketFlags) bool {
	return f&flag != 0
}

// Packet is one device delivery. Data belongs to the stream until the packet
// is handed back with ReleaseBuffer and must not be retained past that call.
// When FlagSilent is set Data may be nil or garbage.
type Packet struct {
	Frames uint32
	Data   []byte
	Flags  PacketFlags
}

// Stream is a polled capture stream. Every successful GetBuffer must be
// paired with exactly one ReleaseBuffer before the next GetBuffer.
type Stream interface {
	Format() Format
	Start() error
	Stop() error
	NextPacketSize() (uint32, error)
	GetBuffer() (Packet, error)
	ReleaseBuffer(frames uint32) error
	Close() error
}

var (
	ErrOutOfOrder   = errors.New("buffer acquire/release out of order")
	ErrStreamClosed = errors.New("stream closed")
)

type DeviceErrorKind int

const (
	ServiceUnavailable DeviceErrorKind = iota + 1
	DeviceUnavailable
	ActivationFailed
)

func (k DeviceErrorKind) String() string {
	switch k {
	case ServiceUnavailable:
		return "audio service unavailable"
	case DeviceUnavailable:
		return "no audio render device"
	case ActivationFailed:
		return "loopback activation failed"
	default:
		return "device error"
	}
}

// Sentinels for errors.Is against a *DeviceError of the same kind.
var (
	ErrServiceUnavailable = &DeviceError{Kind: ServiceUnavailable}
	ErrDeviceUnavailable  = &DeviceError{Kind: DeviceUnavailable}
	ErrActivationFailed   = &DeviceError{Kind: ActivationFailed}
)

// DeviceError is a fatal failure to reach, open or start the loopback stream.
// Code is the platform result code when one was reported, otherwise zero.
type DeviceError struct {
	Kind DeviceErrorKind
	Op   string
	Code int32
	Err  error
}

func (e *DeviceError) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Code != 0 {
		msg += fmt.Sprintf(" (code %d)", e.Code)
	}
	return msg
}

func (e *DeviceError) ResultCode() int32 {
	return e.Code
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

func (e *DeviceError) Is(target error) bool {
	t, ok := target.(*DeviceError)
	return ok && t.Kind == e.Kind && t.Op == "" && t.Err == nil
}
