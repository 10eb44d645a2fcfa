package main

import (
	"io"
	"sync"
	"sync/atomic"
)

// audioFanout distributes the decoder's raw audio stream to up to two
// independent consumers. Each consumer has its own bounded buffer so one
// stalling cannot block the other or the producer:
//
//   - player: small buffer, drop-oldest on overflow. A lost chunk is a brief
//     playback glitch; latency matters more than completeness.
//   - recorder: larger buffer, drop-newest once it is exhausted. The extra
//     depth absorbs encoder stalls before anything is lost, since silent
//     gaps in a recording are worse than a playback glitch.
type audioFanout struct {
	mu       sync.Mutex
	player   chan []byte
	recorder chan []byte
	closed   bool

	recorderBufChunks int

	playerDropped   atomic.Int64
	recorderDropped atomic.Int64
}

func newAudioFanout(playerBufChunks, recorderBufChunks int) *audioFanout {
	return &audioFanout{
		player:            make(chan []byte, playerBufChunks),
		recorderBufChunks: recorderBufChunks,
	}
}

// attachPlayer starts the goroutine draining the player buffer into the
// player process's stdin
func (f *audioFanout) attachPlayer(stdin io.WriteCloser) {
	go drainTo(f.player, stdin)
}

// attachRecorder opens the recorder leg of the fan-out
func (f *audioFanout) attachRecorder(stdin io.WriteCloser) {
	f.mu.Lock()
	if f.closed || f.recorder != nil {
		f.mu.Unlock()
		return
	}
	ch := make(chan []byte, f.recorderBufChunks)
	f.recorder = ch
	f.mu.Unlock()

	go drainTo(ch, stdin)
}

// detachRecorder closes the recorder leg; the drain goroutine flushes what
// is buffered and exits
func (f *audioFanout) detachRecorder() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recorder != nil {
		close(f.recorder)
		f.recorder = nil
	}
}

// offer delivers one audio chunk to every attached consumer without ever
// blocking the caller. The lock is held across the non-blocking sends so a
// concurrent close cannot close a channel mid-send.
func (f *audioFanout) offer(chunk []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	recorder := f.recorder

	select {
	case f.player <- chunk:
	default:
		// Full: evict the oldest chunk to make room
		select {
		case <-f.player:
			f.playerDropped.Add(1)
			metrics.audioDroppedTotal.WithLabelValues("player").Inc()
		default:
		}
		select {
		case f.player <- chunk:
		default:
			f.playerDropped.Add(1)
			metrics.audioDroppedTotal.WithLabelValues("player").Inc()
		}
	}

	if recorder != nil {
		select {
		case recorder <- chunk:
		default:
			f.recorderDropped.Add(1)
			metrics.audioDroppedTotal.WithLabelValues("recorder").Inc()
		}
	}
}

// close tears down both legs; subsequent offers are discarded
func (f *audioFanout) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	close(f.player)
	if f.recorder != nil {
		close(f.recorder)
		f.recorder = nil
	}
}

// drainTo writes buffered chunks to a process's stdin until the channel
// closes or the process goes away
func drainTo(ch <-chan []byte, w io.WriteCloser) {
	defer w.Close()
	for chunk := range ch {
		if _, err := w.Write(chunk); err != nil {
			// Consumer is gone; keep draining so the producer never blocks
			for range ch {
			}
			return
		}
	}
}
