//go:build cgo

package audio

import (
	"errors"
	"reflect"
	"runtime"
	"sync"

	"github.com/gen2brain/malgo"
)

// LoopbackStream captures the mix rendered by the default output device.
type LoopbackStream struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	format Format
	queue  *packetQueue
	name   string

	closeOnce sync.Once
}

// OpenLoopback opens a shared-mode loopback stream on the default render
// endpoint in the endpoint's own mix format. Failures are *DeviceError and are
// not retried.
func OpenLoopback(opts LoopbackOptions) (*LoopbackStream, error) {
	opts = opts.withDefaults()

	malgoCtx, err := malgoInitContext(loopbackBackends(), malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, deviceError(ServiceUnavailable, "init audio context", err)
	}

	name, err := defaultRenderEndpoint(malgoCtx)
	if err != nil {
		releaseContext(malgoCtx)
		return nil, err
	}

	s := &LoopbackStream{ctx: malgoCtx, queue: newPacketQueue(0), name: name}

	device, format, err := s.initDevice(malgo.FormatUnknown, 0, 0, opts)
	if err != nil {
		releaseContext(malgoCtx)
		return nil, err
	}
	if !format.Float && format.BitDepth != TargetBitDepth {
		// Integer mix formats other than s16 are converted by the backend.
		malgoDeviceUninit(device)
		device, format, err = s.initDevice(malgo.FormatS16, format.Channels, format.SampleRate, opts)
		if err != nil {
			releaseContext(malgoCtx)
			return nil, err
		}
	}
	if err := format.Validate(); err != nil {
		malgoDeviceUninit(device)
		releaseContext(malgoCtx)
		return nil, deviceError(ActivationFailed, "negotiate mix format", err)
	}

	s.device = device
	s.format = format
	s.queue.setLimit(bufferFrames(format.SampleRate, opts.BufferDuration))
	return s, nil
}

func (s *LoopbackStream) initDevice(format malgo.FormatType, channels, sampleRate uint32, opts LoopbackOptions) (*malgo.Device, Format, error) {
	deviceConfig := malgoDefaultDeviceConfig(malgo.Loopback)
	deviceConfig.Capture.Format = format
	deviceConfig.Capture.Channels = channels
	deviceConfig.Capture.ShareMode = malgo.Shared
	deviceConfig.SampleRate = sampleRate
	deviceConfig.PeriodSizeInMilliseconds = uint32(opts.PeriodDuration.Milliseconds())

	queue := s.queue
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			queue.push(input, frameCount)
		},
	}

	device, err := malgoInitDevice(s.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, Format{}, deviceError(ActivationFailed, "init loopback device", err)
	}
	nativeFormat, nativeChannels, nativeRate := malgoDeviceFormat(device)
	return device, formatFromMalgo(nativeFormat, nativeChannels, nativeRate), nil
}

func defaultRenderEndpoint(malgoCtx *malgo.AllocatedContext) (string, error) {
	devices, err := malgoContextDevices(malgoCtx.Context, malgo.Playback)
	if err != nil {
		return "", deviceError(DeviceUnavailable, "enumerate render devices", err)
	}
	if len(devices) == 0 {
		return "", deviceError(DeviceUnavailable, "enumerate render devices", nil)
	}
	for i := range devices {
		if devices[i].IsDefault != 0 {
			return devices[i].Name(), nil
		}
	}
	return devices[0].Name(), nil
}

func loopbackBackends() []malgo.Backend {
	if runtime.GOOS == "windows" {
		return []malgo.Backend{malgo.BackendWasapi}
	}
	return nil
}

func formatFromMalgo(format malgo.FormatType, channels, sampleRate uint32) Format {
	f := Format{Channels: channels, SampleRate: sampleRate}
	switch format {
	case malgo.FormatU8:
		f.BitDepth = 8
	case malgo.FormatS16:
		f.BitDepth = 16
	case malgo.FormatS24:
		f.BitDepth = 24
	case malgo.FormatS32:
		f.BitDepth = 32
	case malgo.FormatF32:
		f.BitDepth = 32
		f.Float = true
	}
	return f
}

func deviceError(kind DeviceErrorKind, op string, err error) *DeviceError {
	return &DeviceError{Kind: kind, Op: op, Code: resultCode(err), Err: err}
}

// resultCode finds a miniaudio result code in err's chain. Result codes are
// int32-kinded error values.
func resultCode(err error) int32 {
	for ; err != nil; err = errors.Unwrap(err) {
		v := reflect.ValueOf(err)
		if v.Kind() == reflect.Int32 {
			return int32(v.Int())
		}
	}
	return 0
}

func releaseContext(malgoCtx *malgo.AllocatedContext) {
	_ = malgoContextUninit(malgoCtx)
	malgoContextFree(malgoCtx)
}

func (s *LoopbackStream) Format() Format {
	return s.format
}

// DeviceName is the friendly name of the endpoint being captured.
func (s *LoopbackStream) DeviceName() string {
	return s.name
}

func (s *LoopbackStream) Start() error {
	if err := malgoDeviceStart(s.device); err != nil {
		return deviceError(ActivationFailed, "start loopback stream", err)
	}
	return nil
}

func (s *LoopbackStream) Stop() error {
	if err := malgoDeviceStop(s.device); err != nil {
		return deviceError(ActivationFailed, "stop loopback stream", err)
	}
	return nil
}

func (s *LoopbackStream) NextPacketSize() (uint32, error) {
	return s.queue.nextPacketSize()
}

func (s *LoopbackStream) GetBuffer() (Packet, error) {
	return s.queue.get()
}

func (s *LoopbackStream) ReleaseBuffer(frames uint32) error {
	return s.queue.release(frames)
}

// Dropped is the number of deliveries discarded because the queue was full.
func (s *LoopbackStream) Dropped() uint64 {
	return s.queue.droppedCount()
}

func (s *LoopbackStream) Close() error {
	if s == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		if s.device != nil {
			malgoDeviceUninit(s.device)
			s.device = nil
		}
		if s.queue != nil {
			s.queue.close()
		}
		if s.ctx != nil {
			releaseContext(s.ctx)
			s.ctx = nil
		}
	})
	return nil
}
