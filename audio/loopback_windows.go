//go:build windows

package audio

import (
	"fmt"
	"log"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/go-ole/go-ole"
	"github.com/moutend/go-wca/pkg/wca"
)

const systemAudioSupported = true

// Захват системного звука на Windows идёт через WASAPI loopback в shared
// режиме на устройстве воспроизведения по умолчанию. Цикл захвата крутится
// в выделенном OS-потоке и опрашивает capture client каждые 10 мс, пока
// не снят флаг capturing.

const (
	waveFormatPCM        = 1
	waveFormatIEEEFloat  = 3
	waveFormatExtensible = 0xFFFE
)

// LoopbackCapture захват системного звука через WASAPI loopback
type LoopbackCapture struct {
	mu         sync.Mutex
	capturing  atomic.Bool
	done       chan struct{}
	writer     *WAVWriter
	outputPath string
}

func newPlatformSystemCapture() SystemCapture {
	return &LoopbackCapture{}
}

// HasPermission на Windows loopback-захват не требует разрешений
func (c *LoopbackCapture) HasPermission() (bool, error) {
	return true, nil
}

// RequestPermission на Windows запрашивать нечего
func (c *LoopbackCapture) RequestPermission() (bool, error) {
	return true, nil
}

// Start начинает захват в указанный WAV файл (48 кГц стерео PCM16)
func (c *LoopbackCapture) Start(outputPath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capturing.Load() {
		return ErrAlreadyCapturing
	}

	writer, err := NewWAVWriter(outputPath, 48000, 2, 16)
	if err != nil {
		return err
	}

	c.capturing.Store(true)
	c.done = make(chan struct{})
	c.writer = writer
	c.outputPath = outputPath

	initErr := make(chan error, 1)
	go c.runCaptureLoop(writer, initErr)

	if err := <-initErr; err != nil {
		c.capturing.Store(false)
		<-c.done
		writer.Close()
		c.writer = nil
		c.done = nil
		return err
	}

	log.Printf("WASAPI loopback capture started: %s", outputPath)
	return nil
}

// runCaptureLoop цикл захвата в выделенном потоке
func (c *LoopbackCapture) runCaptureLoop(writer *WAVWriter, initErr chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(c.done)

	if err := ole.CoInitializeEx(0, ole.COINIT_APARTMENTTHREADED); err != nil {
		initErr <- fmt.Errorf("failed to initialize COM: %w", err)
		return
	}
	defer ole.CoUninitialize()

	var de *wca.IMMDeviceEnumerator
	if err := wca.CoCreateInstance(wca.CLSID_MMDeviceEnumerator, 0, wca.CLSCTX_ALL, wca.IID_IMMDeviceEnumerator, &de); err != nil {
		initErr <- fmt.Errorf("failed to create device enumerator: %w", err)
		return
	}
	defer de.Release()

	var mmd *wca.IMMDevice
	if err := de.GetDefaultAudioEndpoint(wca.ERender, wca.EConsole, &mmd); err != nil {
		initErr <- fmt.Errorf("%w: no default render device: %v", ErrNoInputDevice, err)
		return
	}
	defer mmd.Release()

	var ac *wca.IAudioClient
	if err := mmd.Activate(wca.IID_IAudioClient, wca.CLSCTX_ALL, nil, &ac); err != nil {
		initErr <- fmt.Errorf("failed to activate audio client: %w", err)
		return
	}
	defer ac.Release()

	var wfx *wca.WAVEFORMATEX
	if err := ac.GetMixFormat(&wfx); err != nil {
		initErr <- fmt.Errorf("failed to get mix format: %w", err)
		return
	}
	defer ole.CoTaskMemFree(uintptr(unsafe.Pointer(wfx)))

	srcRate := int(wfx.NSamplesPerSec)
	srcChannels := int(wfx.NChannels)
	isFloat := wfx.WFormatTag == waveFormatIEEEFloat ||
		(wfx.WFormatTag == waveFormatExtensible && wfx.WBitsPerSample == 32)
	isPCM16 := wfx.WFormatTag == waveFormatPCM && wfx.WBitsPerSample == 16
	if !isFloat && !isPCM16 {
		initErr <- fmt.Errorf("%w: mix format tag=%d bits=%d", ErrUnsupportedFormat, wfx.WFormatTag, wfx.WBitsPerSample)
		return
	}

	// 200 мс буфер, shared mode + loopback на устройстве воспроизведения
	if err := ac.Initialize(wca.AUDCLNT_SHAREMODE_SHARED, wca.AUDCLNT_STREAMFLAGS_LOOPBACK, 200*10000, 0, wfx, nil); err != nil {
		initErr <- fmt.Errorf("failed to initialize loopback client: %w", err)
		return
	}

	var acc *wca.IAudioCaptureClient
	if err := ac.GetService(wca.IID_IAudioCaptureClient, &acc); err != nil {
		initErr <- fmt.Errorf("failed to get capture client: %w", err)
		return
	}
	defer acc.Release()

	if err := ac.Start(); err != nil {
		initErr <- fmt.Errorf("failed to start loopback capture: %w", err)
		return
	}
	defer ac.Stop()

	initErr <- nil

	blockAlign := int(wfx.NBlockAlign)

	for c.capturing.Load() {
		// Поллинг вместо event-driven режима: события с loopback
		// работают ненадёжно
		time.Sleep(10 * time.Millisecond)

		var data *byte
		var availableFrames uint32
		var flags uint32
		var devicePosition uint64
		var qcpPosition uint64

		if err := acc.GetBuffer(&data, &availableFrames, &flags, &devicePosition, &qcpPosition); err != nil {
			continue
		}
		if availableFrames == 0 {
			continue
		}

		length := int(availableFrames) * blockAlign
		raw := unsafe.Slice(data, length)

		samples := decodeLoopbackFrames(raw, int(availableFrames), srcChannels, isFloat)
		c.processFrames(samples, srcRate, srcChannels, writer)

		if err := acc.ReleaseBuffer(availableFrames); err != nil {
			log.Printf("Failed to release loopback buffer: %v", err)
			return
		}
	}
}

// decodeLoopbackFrames конвертирует сырые кадры в интерлив f32
func decodeLoopbackFrames(raw []byte, frames, channels int, isFloat bool) []float32 {
	sampleCount := frames * channels
	samples := make([]float32, sampleCount)

	if isFloat {
		for i := 0; i < sampleCount && i*4+3 < len(raw); i++ {
			bits := uint32(raw[i*4]) | uint32(raw[i*4+1])<<8 | uint32(raw[i*4+2])<<16 | uint32(raw[i*4+3])<<24
			samples[i] = *(*float32)(unsafe.Pointer(&bits))
		}
	} else {
		for i := 0; i < sampleCount && i*2+1 < len(raw); i++ {
			s := int16(uint16(raw[i*2]) | uint16(raw[i*2+1])<<8)
			samples[i] = float32(s) / 32768.0
		}
	}

	return samples
}

// processFrames пишет 48 кГц стерео i16 в WAV и 16 кГц моно в SystemBuffer
func (c *LoopbackCapture) processFrames(samples []float32, srcRate, srcChannels int, writer *WAVWriter) {
	if len(samples) == 0 {
		return
	}

	frames := len(samples) / srcChannels

	// Левый/правый каналы; моно дублируется
	left := make([]float32, frames)
	right := make([]float32, frames)
	for i := 0; i < frames; i++ {
		left[i] = samples[i*srcChannels]
		if srcChannels > 1 {
			right[i] = samples[i*srcChannels+1]
		} else {
			right[i] = left[i]
		}
	}

	leftOut := Resample(left, srcRate, 48000)
	rightOut := Resample(right, srcRate, 48000)

	n := len(leftOut)
	if len(rightOut) < n {
		n = len(rightOut)
	}
	interleaved := make([]int16, 0, n*2)
	for i := 0; i < n; i++ {
		l := leftOut[i]
		r := rightOut[i]
		if l > 1.0 {
			l = 1.0
		} else if l < -1.0 {
			l = -1.0
		}
		if r > 1.0 {
			r = 1.0
		} else if r < -1.0 {
			r = -1.0
		}
		interleaved = append(interleaved, int16(l*32767), int16(r*32767))
	}
	if err := writer.WriteInt16(interleaved); err != nil {
		log.Printf("Failed to write loopback samples: %v", err)
	}

	mono := DownmixMono(samples, srcChannels)
	SystemBuffer.Push(Resample(mono, srcRate, 16000))

	storeSystemLevel(CalculateRMS(mono))
}

// Stop останавливает захват и финализирует WAV файл
func (c *LoopbackCapture) Stop() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.capturing.Load() {
		return "", ErrNotRecording
	}

	c.capturing.Store(false)
	<-c.done

	path := c.outputPath
	if err := c.writer.Close(); err != nil {
		log.Printf("Failed to finalize system WAV: %v", err)
	}
	c.writer = nil
	c.done = nil
	storeSystemLevel(0)

	log.Printf("WASAPI loopback capture stopped: %s", path)
	return path, nil
}

// IsCapturing возвращает true если захват активен
func (c *LoopbackCapture) IsCapturing() bool {
	return c.capturing.Load()
}
