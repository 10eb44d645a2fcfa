package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// ProcessRole identifies which job a supervised child process performs
type ProcessRole int

const (
	RoleDecoder ProcessRole = iota
	RolePlayer
	RoleRecorder
)

func (r ProcessRole) String() string {
	switch r {
	case RoleDecoder:
		return "decoder"
	case RolePlayer:
		return "player"
	case RoleRecorder:
		return "recorder"
	}
	return "unknown"
}

// LaunchError indicates a child process could not be found or spawned
type LaunchError struct {
	Role    ProcessRole
	Command string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch %s (%s): %v", e.Role, e.Command, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// ProcessExit is emitted when a supervised process exits without having been
// asked to stop
type ProcessExit struct {
	Role ProcessRole
	Code int
}

// ProcessHandle is an owned OS process plus its piped streams
type ProcessHandle struct {
	Role ProcessRole

	cmd      *exec.Cmd
	stdin    io.WriteCloser
	stdout   io.ReadCloser
	stderr   io.ReadCloser
	done     chan struct{}
	exitCode int
	stopping atomic.Bool
	stopOnce sync.Once
}

// Running reports whether the process has not yet exited
func (h *ProcessHandle) Running() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// ExitCode returns the process exit code; only meaningful once Running() is
// false
func (h *ProcessHandle) ExitCode() int { return h.exitCode }

// Pid returns the OS process ID
func (h *ProcessHandle) Pid() int { return h.cmd.Process.Pid }

// Supervisor owns the decoder, player and recorder child processes for one
// radio session, fans the decoder's audio output out to the consumers, and
// reports unexpected exits. At most one process per role exists at a time.
type Supervisor struct {
	mu      sync.Mutex
	handles map[ProcessRole]*ProcessHandle
	fanout  *audioFanout

	exits chan ProcessExit
	lines chan string

	gracePeriod       time.Duration
	chunkSize         int
	playerBufChunks   int
	recorderBufChunks int
}

// NewSupervisor creates a supervisor with the given audio pipeline sizing
func NewSupervisor(cfg AudioConfig) *Supervisor {
	return &Supervisor{
		handles:           make(map[ProcessRole]*ProcessHandle),
		exits:             make(chan ProcessExit, 16),
		lines:             make(chan string, 256),
		gracePeriod:       2 * time.Second,
		chunkSize:         cfg.ChunkSize,
		playerBufChunks:   cfg.PlayerBufferChunks,
		recorderBufChunks: cfg.RecorderBufferChunks,
	}
}

// Exits returns the channel carrying unexpected process exit notifications.
// The channel is buffered so a slow consumer cannot make a fatal exit
// disappear under normal operation.
func (s *Supervisor) Exits() <-chan ProcessExit { return s.exits }

// Lines returns the channel carrying the decoder's diagnostic output,
// one line per message
func (s *Supervisor) Lines() <-chan string { return s.lines }

// Handle returns the current handle for a role, or nil if none is running
func (s *Supervisor) Handle(role ProcessRole) *ProcessHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handles[role]
}

// Start launches a child process for the given role. The player must be
// started before the decoder so the audio fan-out has somewhere to deliver.
// Returns a LaunchError if the executable is missing or spawning fails.
func (s *Supervisor) Start(role ProcessRole, command string, args []string) (*ProcessHandle, error) {
	path, err := exec.LookPath(command)
	if err != nil {
		return nil, &LaunchError{Role: role, Command: command, Err: err}
	}

	s.mu.Lock()
	if existing := s.handles[role]; existing != nil && existing.Running() {
		s.mu.Unlock()
		return nil, &LaunchError{Role: role, Command: command, Err: errors.New("already running")}
	}
	s.mu.Unlock()

	cmd := exec.Command(path, args...)
	h := &ProcessHandle{
		Role: role,
		cmd:  cmd,
		done: make(chan struct{}),
	}

	switch role {
	case RoleDecoder:
		if h.stdout, err = cmd.StdoutPipe(); err != nil {
			return nil, &LaunchError{Role: role, Command: command, Err: err}
		}
		if h.stderr, err = cmd.StderrPipe(); err != nil {
			return nil, &LaunchError{Role: role, Command: command, Err: err}
		}
	case RolePlayer, RoleRecorder:
		if h.stdin, err = cmd.StdinPipe(); err != nil {
			return nil, &LaunchError{Role: role, Command: command, Err: err}
		}
		if h.stderr, err = cmd.StderrPipe(); err != nil {
			return nil, &LaunchError{Role: role, Command: command, Err: err}
		}
	}

	if err := cmd.Start(); err != nil {
		return nil, &LaunchError{Role: role, Command: command, Err: err}
	}

	s.mu.Lock()
	s.handles[role] = h
	s.mu.Unlock()

	log.Printf("Supervisor: started %s (pid %d): %s", role, cmd.Process.Pid, command)

	go s.waitForExit(h)

	switch role {
	case RoleDecoder:
		go s.scanDecoderLog(h)
		go s.pumpAudio(h)
	case RolePlayer:
		s.mu.Lock()
		s.fanout = newAudioFanout(s.playerBufChunks, s.recorderBufChunks)
		fanout := s.fanout
		s.mu.Unlock()
		fanout.attachPlayer(h.stdin)
	case RoleRecorder:
		s.mu.Lock()
		fanout := s.fanout
		s.mu.Unlock()
		if fanout != nil {
			fanout.attachRecorder(h.stdin)
		}
	}

	if role == RolePlayer || role == RoleRecorder {
		go s.logChildOutput(h)
	}

	return h, nil
}

// waitForExit reaps the process and notifies on unexpected exits
func (s *Supervisor) waitForExit(h *ProcessHandle) {
	err := h.cmd.Wait()
	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}
	h.exitCode = code
	close(h.done)

	s.mu.Lock()
	if s.handles[h.Role] == h {
		delete(s.handles, h.Role)
	}
	s.mu.Unlock()

	if h.stopping.Load() {
		log.Printf("Supervisor: %s terminated (requested stop)", h.Role)
		return
	}

	log.Printf("Supervisor: %s exited unexpectedly with code %d", h.Role, code)
	metrics.processExits.WithLabelValues(h.Role.String()).Inc()
	s.exits <- ProcessExit{Role: h.Role, Code: code}
}

// scanDecoderLog streams the decoder's stderr line-by-line onto the lines
// channel. The channel is bounded: a briefly slow consumer backpressures the
// reader rather than losing metadata.
func (s *Supervisor) scanDecoderLog(h *ProcessHandle) {
	scanner := bufio.NewScanner(h.stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024)
	for scanner.Scan() {
		s.lines <- scanner.Text()
	}
	// EOF or closed pipe: the process exited or is being torn down
}

// pumpAudio reads raw decoded audio from the decoder's stdout and hands it to
// the fan-out. The pump exits when the stream closes.
func (s *Supervisor) pumpAudio(h *ProcessHandle) {
	s.mu.Lock()
	fanout := s.fanout
	s.mu.Unlock()

	buf := make([]byte, s.chunkSize)
	for {
		n, err := h.stdout.Read(buf)
		if n > 0 {
			metrics.audioBytesTotal.Add(float64(n))
			if fanout != nil {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				fanout.offer(chunk)
			}
		}
		if err != nil {
			return
		}
	}
}

// logChildOutput drains a consumer process's stderr so it cannot block, and
// surfaces it in debug mode
func (s *Supervisor) logChildOutput(h *ProcessHandle) {
	scanner := bufio.NewScanner(h.stderr)
	for scanner.Scan() {
		if DebugMode {
			log.Printf("%s: %s", h.Role, scanner.Text())
		}
	}
}

// Stop requests graceful termination of a process and force-kills it after
// the grace period. Stopping an already-stopped handle is a no-op. Stop
// blocks until the process has exited.
func (s *Supervisor) Stop(h *ProcessHandle) {
	if h == nil {
		return
	}
	h.stopping.Store(true)
	h.stopOnce.Do(func() {
		// Closing stdin lets ffmpeg finalize the recording and ffplay drain
		// its buffer before any signal arrives
		if h.stdin != nil {
			h.stdin.Close()
			select {
			case <-h.done:
				return
			case <-time.After(s.gracePeriod):
			}
		}
		if err := h.cmd.Process.Signal(syscall.SIGTERM); err == nil {
			select {
			case <-h.done:
				return
			case <-time.After(s.gracePeriod):
			}
		}
		_ = h.cmd.Process.Kill()
	})
	<-h.done
}

// StopAll stops all supervised processes in reverse start order: recorder,
// then player, then decoder, so consumers are gone before their producer
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	recorder := s.handles[RoleRecorder]
	player := s.handles[RolePlayer]
	decoder := s.handles[RoleDecoder]
	fanout := s.fanout
	s.mu.Unlock()

	if fanout != nil {
		fanout.detachRecorder()
	}
	s.Stop(recorder)
	s.Stop(player)
	s.Stop(decoder)

	if fanout != nil {
		fanout.close()
	}
	s.mu.Lock()
	s.fanout = nil
	s.mu.Unlock()

	// Discard decoder lines still buffered so the previous station's
	// metadata cannot leak into the next session
	for {
		select {
		case <-s.lines:
		default:
			return
		}
	}
}

// StopRecorder detaches the recorder from the audio fan-out and stops it,
// leaving playback untouched
func (s *Supervisor) StopRecorder() {
	s.mu.Lock()
	recorder := s.handles[RoleRecorder]
	fanout := s.fanout
	s.mu.Unlock()

	if fanout != nil {
		fanout.detachRecorder()
	}
	s.Stop(recorder)
}
