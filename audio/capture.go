package audio

import (
	"fmt"
	"log"
	"math"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

// micStream состояние одного запущенного захвата. Поля формата и writer
// заполняются до device.Start() и дальше только читаются из callback'а,
// поэтому callback обходится без мьютекса: Uninit() ждёт завершения
// callback'ов, и удерживать общий лок в этот момент нельзя.
type micStream struct {
	active   atomic.Bool
	writer   *WAVWriter
	format   malgo.FormatType
	channels int
}

// processCallback конвертирует callback-буфер в f32 и раскладывает по
// потребителям. Ошибки здесь только логируются: поток best-effort.
func (s *micStream) processCallback(data []byte, framecount uint32) {
	if !s.active.Load() || framecount == 0 {
		return
	}

	sampleCount := int(framecount) * s.channels
	samples := convertToFloat32(data, sampleCount, s.format)
	if len(samples) == 0 {
		return
	}

	storeMicLevel(CalculateRMS(samples))

	MicBuffer.Push(samples)

	if err := s.writer.Write(samples); err != nil {
		log.Printf("Failed to write mic samples: %v", err)
	}
}

// MicCapture управляет захватом звука с микрофона по умолчанию.
// Девайс открывается в родном формате, семплы нормализуются в f32,
// пишутся в WAV (PCM16, родные rate/channels) и дублируются в MicBuffer
// для живой транскрипции.
type MicCapture struct {
	ctx *malgo.AllocatedContext

	mu         sync.Mutex
	device     *malgo.Device
	stream     *micStream
	outputPath string
	capturing  bool
}

// NewMicCapture создаёт захват микрофона
func NewMicCapture() (*MicCapture, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to init audio context: %w", err)
	}

	return &MicCapture{ctx: ctx}, nil
}

// Start начинает захват в указанный WAV файл
func (c *MicCapture) Start(outputPath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capturing {
		return ErrAlreadyRecording
	}

	// Нули в конфиге означают родной формат устройства
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatUnknown
	deviceConfig.Capture.Channels = 0
	deviceConfig.SampleRate = 0
	deviceConfig.Alsa.NoMMap = 1

	stream := &micStream{}
	onRecvFrames := func(pOutputSample, pInputSamples []byte, framecount uint32) {
		stream.processCallback(pInputSamples, framecount)
	}

	device, err := malgo.InitDevice(c.ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onRecvFrames,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoInputDevice, err)
	}

	format := device.CaptureFormat()
	switch format {
	case malgo.FormatS16, malgo.FormatS32, malgo.FormatF32:
		// поддерживаемые форматы
	default:
		device.Uninit()
		return fmt.Errorf("%w: %v", ErrUnsupportedFormat, format)
	}

	sampleRate := int(device.SampleRate())
	channels := int(device.CaptureChannels())

	writer, err := NewWAVWriter(outputPath, sampleRate, channels, 16)
	if err != nil {
		device.Uninit()
		return err
	}

	stream.writer = writer
	stream.format = format
	stream.channels = channels
	stream.active.Store(true)

	MicBuffer.Clear()
	SetMicFormat(uint32(sampleRate), uint32(channels))

	if err := device.Start(); err != nil {
		stream.active.Store(false)
		device.Uninit()
		writer.Close()
		return fmt.Errorf("failed to start microphone capture: %w", err)
	}

	c.device = device
	c.stream = stream
	c.outputPath = outputPath
	c.capturing = true

	log.Printf("Microphone capture started: rate=%d channels=%d path=%s",
		sampleRate, channels, outputPath)
	return nil
}

// convertToFloat32 нормализует callback-буфер в f32 [-1, 1]
func convertToFloat32(data []byte, sampleCount int, format malgo.FormatType) []float32 {
	switch format {
	case malgo.FormatF32:
		if len(data) < sampleCount*4 {
			return nil
		}
		samples := make([]float32, sampleCount)
		for i := 0; i < sampleCount; i++ {
			bits := uint32(data[i*4]) | uint32(data[i*4+1])<<8 | uint32(data[i*4+2])<<16 | uint32(data[i*4+3])<<24
			samples[i] = math.Float32frombits(bits)
		}
		return samples

	case malgo.FormatS16:
		if len(data) < sampleCount*2 {
			return nil
		}
		samples := make([]float32, sampleCount)
		for i := 0; i < sampleCount; i++ {
			s := int16(uint16(data[i*2]) | uint16(data[i*2+1])<<8)
			samples[i] = float32(s) / 32768.0
		}
		return samples

	case malgo.FormatS32:
		if len(data) < sampleCount*4 {
			return nil
		}
		samples := make([]float32, sampleCount)
		for i := 0; i < sampleCount; i++ {
			s := int32(uint32(data[i*4]) | uint32(data[i*4+1])<<8 | uint32(data[i*4+2])<<16 | uint32(data[i*4+3])<<24)
			samples[i] = float32(float64(s) / 2147483648.0)
		}
		return samples
	}

	return nil
}

// Stop останавливает захват и финализирует WAV файл
func (c *MicCapture) Stop() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.capturing {
		return "", ErrNotRecording
	}

	path := c.outputPath
	c.teardownLocked()

	log.Printf("Microphone capture stopped: %s", path)
	return path, nil
}

func (c *MicCapture) teardownLocked() {
	if c.stream != nil {
		c.stream.active.Store(false)
	}
	if c.device != nil {
		c.device.Uninit()
		c.device = nil
	}
	if c.stream != nil {
		if err := c.stream.writer.Close(); err != nil {
			log.Printf("Failed to finalize mic WAV: %v", err)
		}
		c.stream = nil
	}
	c.capturing = false
	storeMicLevel(0)
}

// IsCapturing возвращает true если захват активен
func (c *MicCapture) IsCapturing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capturing
}

// Close освобождает ресурсы
func (c *MicCapture) Close() {
	c.mu.Lock()
	if c.capturing {
		c.teardownLocked()
	}
	c.mu.Unlock()

	if c.ctx != nil {
		c.ctx.Uninit()
		c.ctx.Free()
		c.ctx = nil
	}
}
