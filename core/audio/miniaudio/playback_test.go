package miniaudio

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func waitForMark(t *testing.T, fired *atomic.Int32, want int32) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if fired.Load() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("expected %d mark callbacks, got %d", want, fired.Load())
}

func TestMarkFiresOnceQueuedAudioIsConsumed(t *testing.T) {
	client := &playbackClient{}
	client.queuedAudio = make([]byte, 64)

	var fired atomic.Int32
	if err := client.Mark("reply", func(string) { fired.Add(1) }); err != nil {
		t.Fatalf("failed to place mark: %v", err)
	}

	dataProc := client.processAudio(2)
	out := make([]byte, 32)

	dataProc(out, nil, 16)
	if fired.Load() != 0 {
		t.Fatalf("expected mark to stay pending with audio still queued")
	}

	dataProc(out, nil, 16)
	dataProc(out, nil, 16)
	waitForMark(t, &fired, 1)
}

func TestClearBufferDropsPendingMarks(t *testing.T) {
	client := &playbackClient{}
	client.queuedAudio = make([]byte, 64)

	var fired atomic.Int32
	if err := client.Mark("reply", func(string) { fired.Add(1) }); err != nil {
		t.Fatalf("failed to place mark: %v", err)
	}

	client.ClearBuffer()

	// Draining past where the mark sat must not fire it; the cancelled reply
	// never reports as played.
	dataProc := client.processAudio(2)
	out := make([]byte, 128)
	for range 4 {
		dataProc(out, nil, 64)
	}

	time.Sleep(20 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatalf("expected dropped mark never to fire, fired %d times", fired.Load())
	}
	if len(client.queuedAudio) != 0 {
		t.Fatalf("expected queue emptied by clear, %d bytes left", len(client.queuedAudio))
	}
}

func TestDeviceCallbackRacesClearBuffer(t *testing.T) {
	client := &playbackClient{}
	dataProc := client.processAudio(2)
	out := make([]byte, 256)

	var wg sync.WaitGroup
	wg.Add(2)

	// Device thread draining while the engine queues, marks and cancels.
	go func() {
		defer wg.Done()
		for range 500 {
			dataProc(out, nil, 128)
		}
	}()
	go func() {
		defer wg.Done()
		for range 500 {
			client.audioMu.Lock()
			client.queuedAudio = append(client.queuedAudio, make([]byte, 64)...)
			client.audioMu.Unlock()
			client.Mark("reply", func(string) {})
			client.ClearBuffer()
		}
	}()

	wg.Wait()

	if len(client.marks) != 0 {
		t.Fatalf("expected no marks to survive the final clear, got %d", len(client.marks))
	}
}
