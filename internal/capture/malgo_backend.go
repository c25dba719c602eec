package capture

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gen2brain/malgo"
)

// MalgoBackend captures the default microphone through miniaudio.
type MalgoBackend struct{}

func NewMalgoBackend() *MalgoBackend {
	return &MalgoBackend{}
}

func (b *MalgoBackend) Type() BackendType {
	return BackendTypeMalgo
}

// Start opens the default capture device and begins delivering mono float32
// frames to sink from the device callback.
func (b *MalgoBackend) Start(sampleRate, channels, frameSize int, sink FrameSink) (DeviceHandle, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to init audio context: %w", err)
	}

	deviceCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceCfg.Capture.Format = malgo.FormatF32
	deviceCfg.Capture.Channels = uint32(channels)
	deviceCfg.SampleRate = uint32(sampleRate)
	deviceCfg.PeriodSizeInFrames = uint32(frameSize)

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, frameCount uint32) {
			samples := bytesToFloat32(pInput, frameCount*uint32(channels))
			if channels == 2 {
				samples = downmixMono(samples)
			}
			sink(samples)
		},
	}

	device, err := malgo.InitDevice(ctx.Context, deviceCfg, callbacks)
	if err != nil {
		ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("failed to init capture device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("failed to start capture device: %w", err)
	}

	return &malgoDevice{ctx: ctx, device: device}, nil
}

type malgoDevice struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
}

func (d *malgoDevice) Stop() error {
	if d.device != nil {
		d.device.Uninit()
		d.device = nil
	}
	if d.ctx != nil {
		if err := d.ctx.Uninit(); err != nil {
			d.ctx.Free()
			d.ctx = nil
			return fmt.Errorf("failed to uninit audio context: %w", err)
		}
		d.ctx.Free()
		d.ctx = nil
	}
	return nil
}

// bytesToFloat32 converts raw little-endian float32 bytes from the device
// callback into a sample slice. The callback buffer is reused by miniaudio,
// so the result is always a fresh allocation.
func bytesToFloat32(data []byte, sampleCount uint32) []float32 {
	samples := make([]float32, 0, sampleCount)
	for i := uint32(0); i < sampleCount; i++ {
		offset := i * 4
		if offset+4 > uint32(len(data)) {
			break
		}
		bits := binary.LittleEndian.Uint32(data[offset : offset+4])
		samples = append(samples, math.Float32frombits(bits))
	}
	return samples
}

// downmixMono averages interleaved stereo pairs into a mono frame.
func downmixMono(samples []float32) []float32 {
	mono := make([]float32, len(samples)/2)
	for i := range mono {
		mono[i] = (samples[2*i] + samples[2*i+1]) / 2
	}
	return mono
}
