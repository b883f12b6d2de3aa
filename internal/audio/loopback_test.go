//go:build cgo

package audio

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/gen2brain/malgo"
)

// fakeResult stands in for a miniaudio result code.
type fakeResult int32

func (r fakeResult) Error() string {
	return fmt.Sprintf("ma_result %d", int32(r))
}

const (
	errDeviceTypeNotSupported fakeResult = -201
	errNoBackend              fakeResult = -203
	errNoDevice               fakeResult = -204
	errDeviceNotStarted       fakeResult = -302
)

type malgoCalls struct {
	ctxUninit    int
	ctxFree      int
	deviceInit   int
	deviceUninit int
	deviceStart  int
	deviceStop   int
	configs      []malgo.DeviceConfig
	callbacks    malgo.DeviceCallbacks
}

func saveAndRestoreMalgoHooks(t *testing.T) {
	t.Helper()
	origInitContext := malgoInitContext
	origContextDevices := malgoContextDevices
	origDefaultDeviceConfig := malgoDefaultDeviceConfig
	origInitDevice := malgoInitDevice
	origContextUninit := malgoContextUninit
	origContextFree := malgoContextFree
	origDeviceStart := malgoDeviceStart
	origDeviceStop := malgoDeviceStop
	origDeviceUninit := malgoDeviceUninit
	origDeviceFormat := malgoDeviceFormat

	t.Cleanup(func() {
		malgoInitContext = origInitContext
		malgoContextDevices = origContextDevices
		malgoDefaultDeviceConfig = origDefaultDeviceConfig
		malgoInitDevice = origInitDevice
		malgoContextUninit = origContextUninit
		malgoContextFree = origContextFree
		malgoDeviceStart = origDeviceStart
		malgoDeviceStop = origDeviceStop
		malgoDeviceUninit = origDeviceUninit
		malgoDeviceFormat = origDeviceFormat
	})
}

// installFakeMalgo replaces every hook with an in-memory device that reports
// the given native formats, one per InitDevice call.
func installFakeMalgo(t *testing.T, native ...malgo.FormatType) *malgoCalls {
	t.Helper()
	saveAndRestoreMalgoHooks(t)
	calls := &malgoCalls{}

	malgoInitContext = func([]malgo.Backend, malgo.ContextConfig, malgo.LogProc) (*malgo.AllocatedContext, error) {
		return &malgo.AllocatedContext{}, nil
	}
	malgoContextDevices = func(malgo.Context, malgo.DeviceType) ([]malgo.DeviceInfo, error) {
		return []malgo.DeviceInfo{{IsDefault: 0}, {IsDefault: 1}}, nil
	}
	malgoDefaultDeviceConfig = func(deviceType malgo.DeviceType) malgo.DeviceConfig {
		return malgo.DeviceConfig{DeviceType: deviceType}
	}
	malgoInitDevice = func(_ malgo.Context, cfg malgo.DeviceConfig, cb malgo.DeviceCallbacks) (*malgo.Device, error) {
		calls.deviceInit++
		calls.configs = append(calls.configs, cfg)
		calls.callbacks = cb
		return &malgo.Device{}, nil
	}
	malgoDeviceFormat = func(*malgo.Device) (malgo.FormatType, uint32, uint32) {
		idx := calls.deviceInit - 1
		if idx >= len(native) {
			idx = len(native) - 1
		}
		return native[idx], 2, 48000
	}
	malgoContextUninit = func(*malgo.AllocatedContext) error {
		calls.ctxUninit++
		return nil
	}
	malgoContextFree = func(*malgo.AllocatedContext) {
		calls.ctxFree++
	}
	malgoDeviceStart = func(*malgo.Device) error {
		calls.deviceStart++
		return nil
	}
	malgoDeviceStop = func(*malgo.Device) error {
		calls.deviceStop++
		return nil
	}
	malgoDeviceUninit = func(*malgo.Device) {
		calls.deviceUninit++
	}
	return calls
}

func TestOpenLoopbackContextErrorIsServiceUnavailable(t *testing.T) {
	calls := installFakeMalgo(t, malgo.FormatF32)
	malgoInitContext = func([]malgo.Backend, malgo.ContextConfig, malgo.LogProc) (*malgo.AllocatedContext, error) {
		return nil, errNoBackend
	}

	stream, err := OpenLoopback(LoopbackOptions{})
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("error = %v, want service unavailable", err)
	}
	if stream != nil {
		t.Fatalf("expected nil stream, got %v", stream)
	}
	var devErr *DeviceError
	if !errors.As(err, &devErr) || devErr.Code != int32(errNoBackend) {
		t.Fatalf("expected miniaudio result code in %v", err)
	}
	if calls.ctxUninit != 0 || calls.ctxFree != 0 {
		t.Fatalf("context release calls uninit=%d free=%d, want none", calls.ctxUninit, calls.ctxFree)
	}
}

func TestOpenLoopbackWithoutRenderDeviceReleasesContext(t *testing.T) {
	calls := installFakeMalgo(t, malgo.FormatF32)
	malgoContextDevices = func(malgo.Context, malgo.DeviceType) ([]malgo.DeviceInfo, error) {
		return nil, nil
	}

	_, err := OpenLoopback(LoopbackOptions{})
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("error = %v, want device unavailable", err)
	}
	if calls.ctxUninit != 1 || calls.ctxFree != 1 {
		t.Fatalf("context release calls uninit=%d free=%d, want 1 each", calls.ctxUninit, calls.ctxFree)
	}
	if calls.deviceInit != 0 {
		t.Fatalf("device init calls = %d, want 0", calls.deviceInit)
	}
}

func TestOpenLoopbackEnumerationErrorIsDeviceUnavailable(t *testing.T) {
	installFakeMalgo(t, malgo.FormatF32)
	malgoContextDevices = func(malgo.Context, malgo.DeviceType) ([]malgo.DeviceInfo, error) {
		return nil, errNoDevice
	}

	_, err := OpenLoopback(LoopbackOptions{})
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("error = %v, want device unavailable", err)
	}
}

func TestOpenLoopbackInitDeviceErrorIsActivationFailed(t *testing.T) {
	calls := installFakeMalgo(t, malgo.FormatF32)
	malgoInitDevice = func(malgo.Context, malgo.DeviceConfig, malgo.DeviceCallbacks) (*malgo.Device, error) {
		return nil, errDeviceTypeNotSupported
	}

	_, err := OpenLoopback(LoopbackOptions{})
	if !errors.Is(err, ErrActivationFailed) {
		t.Fatalf("error = %v, want activation failed", err)
	}
	var devErr *DeviceError
	if !errors.As(err, &devErr) || devErr.Code != int32(errDeviceTypeNotSupported) {
		t.Fatalf("expected result code in %v", err)
	}
	if calls.ctxUninit != 1 || calls.ctxFree != 1 {
		t.Fatalf("context release calls uninit=%d free=%d, want 1 each", calls.ctxUninit, calls.ctxFree)
	}
}

func TestOpenLoopbackUsesNativeMixFormat(t *testing.T) {
	calls := installFakeMalgo(t, malgo.FormatF32)

	stream, err := OpenLoopback(LoopbackOptions{})
	if err != nil {
		t.Fatalf("OpenLoopback() error: %v", err)
	}
	defer stream.Close()

	if len(calls.configs) != 1 {
		t.Fatalf("device init calls = %d, want 1", len(calls.configs))
	}
	cfg := calls.configs[0]
	if cfg.DeviceType != malgo.Loopback {
		t.Fatalf("device type = %v, want loopback", cfg.DeviceType)
	}
	if cfg.Capture.Format != malgo.FormatUnknown || cfg.Capture.Channels != 0 || cfg.SampleRate != 0 {
		t.Fatalf("expected native format request, got format=%v channels=%d rate=%d", cfg.Capture.Format, cfg.Capture.Channels, cfg.SampleRate)
	}
	if cfg.Capture.ShareMode != malgo.Shared {
		t.Fatalf("share mode = %v, want shared", cfg.Capture.ShareMode)
	}
	if cfg.PeriodSizeInMilliseconds != 10 {
		t.Fatalf("period = %dms, want 10ms", cfg.PeriodSizeInMilliseconds)
	}

	want := Format{Channels: 2, SampleRate: 48000, BitDepth: 32, Float: true}
	if got := stream.Format(); got != want {
		t.Fatalf("Format() = %+v, want %+v", got, want)
	}
}

func TestOpenLoopbackRequestsS16ForOtherIntegerFormats(t *testing.T) {
	calls := installFakeMalgo(t, malgo.FormatS24, malgo.FormatS16)

	stream, err := OpenLoopback(LoopbackOptions{})
	if err != nil {
		t.Fatalf("OpenLoopback() error: %v", err)
	}
	defer stream.Close()

	if len(calls.configs) != 2 {
		t.Fatalf("device init calls = %d, want 2", len(calls.configs))
	}
	if calls.deviceUninit != 1 {
		t.Fatalf("first device should be uninitialized before retry, uninit calls = %d", calls.deviceUninit)
	}
	retry := calls.configs[1]
	if retry.Capture.Format != malgo.FormatS16 || retry.Capture.Channels != 2 || retry.SampleRate != 48000 {
		t.Fatalf("retry config format=%v channels=%d rate=%d", retry.Capture.Format, retry.Capture.Channels, retry.SampleRate)
	}
	if got := stream.Format(); got.BitDepth != 16 || got.Float {
		t.Fatalf("Format() = %+v, want s16", got)
	}
}

func TestLoopbackStreamDeliversAndReleasesPackets(t *testing.T) {
	calls := installFakeMalgo(t, malgo.FormatF32)

	stream, err := OpenLoopback(LoopbackOptions{})
	if err != nil {
		t.Fatalf("OpenLoopback() error: %v", err)
	}
	if err := stream.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if calls.callbacks.Data == nil {
		t.Fatal("expected data callback to be set")
	}

	calls.callbacks.Data(nil, make([]byte, 480*8), 480)

	size, err := stream.NextPacketSize()
	if err != nil || size != 480 {
		t.Fatalf("NextPacketSize() = %d, %v; want 480", size, err)
	}
	p, err := stream.GetBuffer()
	if err != nil || p.Frames != 480 || len(p.Data) != 480*8 {
		t.Fatalf("GetBuffer() = %+v, %v", p.Frames, err)
	}
	if err := stream.ReleaseBuffer(p.Frames); err != nil {
		t.Fatalf("ReleaseBuffer() error: %v", err)
	}
	if err := stream.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	if err := stream.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("second Close() error: %v", err)
	}
	if calls.deviceStart != 1 || calls.deviceStop != 1 {
		t.Fatalf("start=%d stop=%d, want 1 each", calls.deviceStart, calls.deviceStop)
	}
	if calls.deviceUninit != 1 || calls.ctxUninit != 1 || calls.ctxFree != 1 {
		t.Fatalf("close should be idempotent; device=%d ctx=%d free=%d", calls.deviceUninit, calls.ctxUninit, calls.ctxFree)
	}
	if _, err := stream.NextPacketSize(); !errors.Is(err, ErrStreamClosed) {
		t.Fatalf("NextPacketSize() after close error = %v", err)
	}
}

func TestLoopbackStreamBufferWindowDropsOverflow(t *testing.T) {
	calls := installFakeMalgo(t, malgo.FormatF32)

	stream, err := OpenLoopback(LoopbackOptions{BufferDuration: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("OpenLoopback() error: %v", err)
	}
	defer stream.Close()

	for i := 0; i < 3; i++ {
		calls.callbacks.Data(nil, make([]byte, 480*8), 480)
	}
	if got := stream.Dropped(); got != 1 {
		t.Fatalf("Dropped() = %d, want 1", got)
	}
}

func TestLoopbackStreamStartError(t *testing.T) {
	installFakeMalgo(t, malgo.FormatF32)
	malgoDeviceStart = func(*malgo.Device) error {
		return errDeviceNotStarted
	}

	stream, err := OpenLoopback(LoopbackOptions{})
	if err != nil {
		t.Fatalf("OpenLoopback() error: %v", err)
	}
	defer stream.Close()

	if err := stream.Start(); !errors.Is(err, ErrActivationFailed) {
		t.Fatalf("Start() error = %v, want activation failed", err)
	}
}

func TestLoopbackStreamCloseNilSafety(t *testing.T) {
	var stream *LoopbackStream
	if err := stream.Close(); err != nil {
		t.Fatalf("nil stream close: %v", err)
	}
}

func TestResultCode(t *testing.T) {
	if got := resultCode(fmt.Errorf("init: %w", errNoDevice)); got != int32(errNoDevice) {
		t.Fatalf("resultCode(wrapped) = %d, want %d", got, int32(errNoDevice))
	}
	if got := resultCode(errors.New("plain")); got != 0 {
		t.Fatalf("resultCode(plain) = %d, want 0", got)
	}
	if got := resultCode(nil); got != 0 {
		t.Fatalf("resultCode(nil) = %d, want 0", got)
	}
}
