package audio

import (
	"sync"
	"testing"
)

func TestLiveBufferPushTake(t *testing.T) {
	buf := &LiveBuffer{}

	buf.Push([]float32{1, 2})
	buf.Push([]float32{3})
	if buf.Len() != 3 {
		t.Fatalf("Len = %d, want 3", buf.Len())
	}

	got := buf.Take()
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("Take = %v, want [1 2 3]", got)
	}

	// Take оставляет буфер пустым
	if buf.Len() != 0 {
		t.Errorf("Len after Take = %d, want 0", buf.Len())
	}
	if second := buf.Take(); len(second) != 0 {
		t.Errorf("second Take = %v, want empty", second)
	}
}

func TestLiveBufferPushEmpty(t *testing.T) {
	buf := &LiveBuffer{}
	buf.Push(nil)
	buf.Push([]float32{})
	if buf.Len() != 0 {
		t.Errorf("Len = %d, want 0", buf.Len())
	}
}

func TestLiveBufferClear(t *testing.T) {
	buf := &LiveBuffer{}
	buf.Push([]float32{1, 2, 3})
	buf.Clear()
	if buf.Len() != 0 {
		t.Errorf("Len after Clear = %d, want 0", buf.Len())
	}
}

// TestLiveBufferConcurrent параллельные писатели не теряют семплы
func TestLiveBufferConcurrent(t *testing.T) {
	buf := &LiveBuffer{}

	const writers = 8
	const pushes = 100
	const chunk = 64

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data := make([]float32, chunk)
			for i := 0; i < pushes; i++ {
				buf.Push(data)
			}
		}()
	}
	wg.Wait()

	if got := len(buf.Take()); got != writers*pushes*chunk {
		t.Errorf("total samples = %d, want %d", got, writers*pushes*chunk)
	}
}

func TestMicFormat(t *testing.T) {
	SetMicFormat(44100, 2)
	rate, channels := MicFormat()
	if rate != 44100 || channels != 2 {
		t.Errorf("MicFormat = (%d, %d), want (44100, 2)", rate, channels)
	}
	SetMicFormat(0, 0)
}
