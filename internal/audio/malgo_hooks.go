//go:build cgo

package audio

import "github.com/gen2brain/malgo"

var (
	malgoInitContext         = malgo.InitContext
	malgoContextDevices      = malgo.Context.Devices
	malgoDefaultDeviceConfig = malgo.DefaultDeviceConfig
	malgoInitDevice          = malgo.InitDevice
	malgoContextUninit       = (*malgo.AllocatedContext).Uninit
	malgoContextFree         = (*malgo.AllocatedContext).Free
	malgoDeviceStart         = (*malgo.Device).Start
	malgoDeviceStop          = (*malgo.Device).Stop
	malgoDeviceUninit        = (*malgo.Device).Uninit
	malgoDeviceFormat        = func(d *malgo.Device) (malgo.FormatType, uint32, uint32) {
		return d.CaptureFormat(), d.CaptureChannels(), d.SampleRate()
	}
)
