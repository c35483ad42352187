package audio

import (
	"math"
	"sync"
	"sync/atomic"
)

// LiveBuffer накопительный буфер живых семплов для одного источника.
// Пишется из аудио-callback'а, целиком забирается планировщиком транскрипции.
// Не ограничен по размеру: планировщик обязан дренировать его раз в тик.
type LiveBuffer struct {
	mu      sync.Mutex
	samples []float32
}

// Push добавляет семплы в конец буфера
func (b *LiveBuffer) Push(samples []float32) {
	if len(samples) == 0 {
		return
	}
	b.mu.Lock()
	b.samples = append(b.samples, samples...)
	b.mu.Unlock()
}

// Take атомарно забирает всё содержимое буфера, оставляя его пустым
func (b *LiveBuffer) Take() []float32 {
	b.mu.Lock()
	out := b.samples
	b.samples = nil
	b.mu.Unlock()
	return out
}

// Clear очищает буфер
func (b *LiveBuffer) Clear() {
	b.mu.Lock()
	b.samples = nil
	b.mu.Unlock()
}

// Len возвращает текущее количество семплов
func (b *LiveBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.samples)
}

// Глобальные буферы живых семплов. OS-callback'и не умеют нести
// пользовательский контекст на всех платформах, поэтому состояние
// процесс-глобальное и доступно остальному коду только через Take/Clear.
var (
	// MicBuffer семплы микрофона как их отдал девайс (f32, родные rate/channels)
	MicBuffer = &LiveBuffer{}
	// SystemBuffer системный звук, уже нормализованный в 16 кГц моно
	SystemBuffer = &LiveBuffer{}

	// Формат микрофонного потока, публикуется при старте захвата
	micSampleRate atomic.Uint32
	micChannels   atomic.Uint32

	// Уровни для VU-метров (биты float32)
	micLevel    atomic.Uint32
	systemLevel atomic.Uint32
)

// SetMicFormat публикует фактический формат микрофонного захвата
func SetMicFormat(sampleRate, channels uint32) {
	micSampleRate.Store(sampleRate)
	micChannels.Store(channels)
}

// MicFormat возвращает rate и количество каналов микрофонного потока.
// Нули означают что захват ещё не стартовал.
func MicFormat() (sampleRate, channels uint32) {
	return micSampleRate.Load(), micChannels.Load()
}

func storeMicLevel(rms float64) {
	micLevel.Store(math.Float32bits(float32(rms)))
}

func storeSystemLevel(rms float64) {
	systemLevel.Store(math.Float32bits(float32(rms)))
}

// MicLevel текущий RMS-уровень микрофона
func MicLevel() float32 {
	return math.Float32frombits(micLevel.Load())
}

// SystemLevel текущий RMS-уровень системного звука
func SystemLevel() float32 {
	return math.Float32frombits(systemLevel.Load())
}

// ResetLevels сбрасывает уровни (вызывается при остановке захвата)
func ResetLevels() {
	micLevel.Store(0)
	systemLevel.Store(0)
}
