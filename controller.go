package main

import (
	"fmt"
	"log"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session identifies one tuning attempt from start command to stop or crash
type Session struct {
	ID        string
	Frequency float64
	Program   int
	Host      string
	Port      int
	StartedAt time.Time
}

// Controller is the composition root for one radio: it drives the supervisor
// from display-layer commands and feeds the supervisor's decoder log through
// the parser into the aggregator. There is exactly one active session, or
// none.
type Controller struct {
	cfg    *Config
	sup    *Supervisor
	agg    *Aggregator
	logBuf *LogBuffer
	hub    *Hub // nil when running without a display transport

	mu        sync.Mutex
	session   *Session
	stopping  bool
	recording bool
}

// NewController wires the pipeline and starts the consumer goroutines, which
// live for the life of the process
func NewController(cfg *Config, sup *Supervisor, agg *Aggregator, logBuf *LogBuffer, hub *Hub) *Controller {
	c := &Controller{
		cfg:    cfg,
		sup:    sup,
		agg:    agg,
		logBuf: logBuf,
		hub:    hub,
	}
	go c.consumeLines()
	go c.consumeExits()
	return c
}

// consumeLines is the reader task turning decoder log lines into state
// updates
func (c *Controller) consumeLines() {
	for line := range c.sup.Lines() {
		c.logBuf.Append(line)
		ev, ok := ParseLogLine(line)
		if !ok {
			metrics.unrecognizedLines.Inc()
			continue
		}
		c.agg.Apply(ev)
		c.broadcast()
	}
}

// consumeExits reacts to unexpected child process exits. A decoder exit is
// fatal to the session; player and recorder exits degrade their feature only.
func (c *Controller) consumeExits() {
	for exit := range c.sup.Exits() {
		switch exit.Role {
		case RoleDecoder:
			c.handleDecoderExit(exit)
		case RolePlayer:
			log.Printf("Controller: player exited (code %d), playback unavailable", exit.Code)
			c.agg.RecordError(fmt.Sprintf("audio player exited (code %d)", exit.Code))
			c.broadcast()
		case RoleRecorder:
			c.mu.Lock()
			wasRecording := c.recording
			c.recording = false
			c.mu.Unlock()
			if wasRecording {
				log.Printf("Controller: recorder exited (code %d), recording stopped", exit.Code)
				c.agg.RecordError(fmt.Sprintf("recorder exited (code %d)", exit.Code))
				c.agg.SetRecording(false, "")
				c.broadcast()
			}
		}
	}
}

func (c *Controller) handleDecoderExit(exit ProcessExit) {
	c.mu.Lock()
	if c.session == nil || c.stopping {
		c.mu.Unlock()
		return
	}
	c.session = nil
	c.recording = false
	c.mu.Unlock()

	msg := fmt.Sprintf("decoder exited unexpectedly (code %d)", exit.Code)
	log.Printf("Controller: %s, stopping session", msg)

	c.agg.SetStopping()
	c.sup.StopAll()
	c.agg.SetIdle()
	c.agg.RecordError(msg)

	if c.hub != nil {
		c.hub.BroadcastError(msg)
	}
	c.broadcast()
}

// StartRadio launches the player and decoder for the given station and
// begins a new session. host/port select a remote rtl_tcp tuner; both empty
// means a locally attached SDR.
func (c *Controller) StartRadio(frequency float64, program int, host string, port int) error {
	if frequency <= 0 {
		return fmt.Errorf("frequency must be greater than zero")
	}
	if program < 0 || program > 3 {
		return fmt.Errorf("program must be 0-3")
	}
	if host != "" && (port < 1 || port > 65535) {
		return fmt.Errorf("port must be 1-65535 when a tuner host is specified")
	}

	c.mu.Lock()
	if c.session != nil {
		c.mu.Unlock()
		return fmt.Errorf("radio is already running")
	}
	session := &Session{
		ID:        uuid.NewString(),
		Frequency: frequency,
		Program:   program,
		Host:      host,
		Port:      port,
		StartedAt: time.Now(),
	}
	c.session = session
	c.mu.Unlock()

	log.Printf("Controller: starting session %s: %.1f MHz program %d", session.ID, frequency, program)
	// Fresh decoder log per run
	c.logBuf.Clear()
	c.agg.StartSession(session.ID, frequency, program)
	c.broadcast()

	// Consumer first, so the fan-out has somewhere to deliver when the
	// decoder starts producing
	if _, err := c.sup.Start(RolePlayer, c.cfg.Player.Path, playerArgs()); err != nil {
		c.failStart(err)
		return err
	}
	if _, err := c.sup.Start(RoleDecoder, c.cfg.Decoder.Path, c.decoderArgs(session)); err != nil {
		c.sup.StopAll()
		c.failStart(err)
		return err
	}

	return nil
}

func (c *Controller) failStart(err error) {
	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()
	c.agg.SetIdle()
	c.agg.RecordError(err.Error())
	if c.hub != nil {
		c.hub.BroadcastError(err.Error())
	}
	c.broadcast()
}

// StopRadio tears the session down in reverse start order. Calling it with
// no session is a no-op.
func (c *Controller) StopRadio() error {
	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return nil
	}
	id := c.session.ID
	c.stopping = true
	c.mu.Unlock()

	log.Printf("Controller: stopping session %s", id)
	c.agg.SetStopping()
	c.broadcast()

	c.sup.StopAll()

	c.mu.Lock()
	c.session = nil
	c.stopping = false
	c.recording = false
	c.mu.Unlock()

	c.agg.SetIdle()
	c.broadcast()
	return nil
}

// StartRecording spawns the recorder and attaches it to the audio fan-out.
// Returns the output file path.
func (c *Controller) StartRecording() (string, error) {
	c.mu.Lock()
	session := c.session
	if session == nil || c.stopping {
		c.mu.Unlock()
		return "", fmt.Errorf("radio is not running")
	}
	if c.recording {
		c.mu.Unlock()
		return "", fmt.Errorf("already recording")
	}
	c.mu.Unlock()

	path := recordingFilename(c.cfg.Recording.Directory, c.agg.Snapshot(), session.Frequency, session.Program)
	if _, err := c.sup.Start(RoleRecorder, c.cfg.Recorder.Path, recorderArgs(path)); err != nil {
		return "", err
	}

	// The session may have been torn down while the recorder was spawning;
	// a recorder that missed the StopAll sweep must not outlive it
	c.mu.Lock()
	if c.session != session || c.stopping {
		c.mu.Unlock()
		c.sup.StopRecorder()
		return "", fmt.Errorf("radio stopped while starting recording")
	}
	c.recording = true
	c.mu.Unlock()

	log.Printf("Controller: recording to %s", path)
	c.agg.SetRecording(true, path)
	c.broadcast()
	return path, nil
}

// StopRecording detaches and stops the recorder, leaving playback running.
// A no-op when not recording.
func (c *Controller) StopRecording() error {
	c.mu.Lock()
	if !c.recording {
		c.mu.Unlock()
		return nil
	}
	c.recording = false
	c.mu.Unlock()

	c.sup.StopRecorder()
	c.agg.SetRecording(false, "")
	c.broadcast()
	log.Printf("Controller: recording stopped")
	return nil
}

// TuneToPreset retunes to a stored preset, restarting the session if one is
// running
func (c *Controller) TuneToPreset(p Preset) error {
	c.mu.Lock()
	running := c.session != nil
	host := c.cfg.Tuner.Host
	port := c.cfg.Tuner.Port
	if c.session != nil {
		host = c.session.Host
		port = c.session.Port
	}
	c.mu.Unlock()

	if running {
		if err := c.StopRadio(); err != nil {
			return err
		}
	}
	return c.StartRadio(p.Frequency, p.Program, host, port)
}

// CurrentSession returns a copy of the active session, or nil
func (c *Controller) CurrentSession() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	s := *c.session
	return &s
}

func (c *Controller) broadcast() {
	if c.hub != nil {
		c.hub.BroadcastSnapshot(c.agg.Snapshot())
	}
}

// decoderArgs builds the nrsc5 argv: [-H host:port] <freq> <program> -o -
func (c *Controller) decoderArgs(s *Session) []string {
	var args []string
	if s.Host != "" {
		args = append(args, "-H", fmt.Sprintf("%s:%d", s.Host, s.Port))
	}
	args = append(args,
		strconv.FormatFloat(s.Frequency, 'f', -1, 64),
		strconv.Itoa(s.Program),
		"-o", "-",
	)
	return append(args, c.cfg.Decoder.ExtraArgs...)
}

// playerArgs builds the ffplay argv consuming raw s16le stereo from stdin
func playerArgs() []string {
	return []string{
		"-nodisp", "-autoexit", "-hide_banner",
		"-loglevel", "quiet",
		"-f", "s16le", "-ar", "44100", "-ac", "2",
		"-fflags", "nobuffer", "-flags", "low_delay",
		"-i", "pipe:0",
	}
}

// recorderArgs builds the ffmpeg argv encoding stdin to MP3
func recorderArgs(path string) []string {
	return []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-f", "s16le", "-ar", "44100", "-ac", "2",
		"-i", "pipe:0",
		"-codec:a", "libmp3lame", "-qscale:a", "2",
		path,
	}
}

var unsafeFilenameChars = regexp.MustCompile(`[\\/*?:"<>|]`)

func sanitizeFilename(s string) string {
	return strings.TrimSpace(unsafeFilenameChars.ReplaceAllString(s, ""))
}

// recordingFilename names the output after the current track when metadata
// is known, falling back to frequency and program
func recordingFilename(dir string, snap Snapshot, frequency float64, program int) string {
	now := time.Now()
	if snap.NowPlaying.Title != nil && snap.NowPlaying.Artist != nil {
		name := fmt.Sprintf("%s - %s_%s.mp3",
			sanitizeFilename(*snap.NowPlaying.Title),
			sanitizeFilename(*snap.NowPlaying.Artist),
			now.Format("150405"))
		return filepath.Join(dir, name)
	}
	freqStr := strings.ReplaceAll(strconv.FormatFloat(frequency, 'f', -1, 64), ".", "_")
	return filepath.Join(dir, fmt.Sprintf("Radio_%s_P%d_%s.mp3", freqStr, program, now.Format("2006-01-02_15-04-05")))
}
