package main

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// SessionState is the lifecycle state of the current tuning session
type SessionState int

const (
	StateIdle SessionState = iota
	StateStarting
	StateActive
	StateStopping
)

func (s SessionState) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateStopping:
		return "stopping"
	}
	return "idle"
}

// NowPlaying holds the currently broadcast track metadata. A nil field means
// the decoder has not announced it this session, which is distinct from an
// empty string.
type NowPlaying struct {
	Title  *string `json:"title,omitempty"`
	Artist *string `json:"artist,omitempty"`
	Album  *string `json:"album,omitempty"`
}

// HistoryEntry is one completed track appended to the play history
type HistoryEntry struct {
	Time   time.Time `json:"time"`
	Title  string    `json:"title"`
	Artist string    `json:"artist"`
	Album  string    `json:"album,omitempty"`
}

// BERSample is one bit-error-rate measurement
type BERSample struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// BERStats summarizes the windowed BER series
type BERStats struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	P95   float64 `json:"p95"`
}

// StationLocation is the transmitter position reported by the decoder
type StationLocation struct {
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Altitude float64 `json:"altitude"`
}

// RelativePosition describes where the station is relative to the configured
// user location
type RelativePosition struct {
	Distance   float64 `json:"distance"`
	Bearing    float64 `json:"bearing"`
	Cardinal   string  `json:"cardinal"`
	Horizontal string  `json:"horizontal"`
	Vertical   string  `json:"vertical,omitempty"`
}

// Snapshot is an immutable copy of the session state handed to display
// clients. Slices are copies; mutating a snapshot never affects the live
// state.
type Snapshot struct {
	State       string  `json:"state"`
	SessionID   string  `json:"session_id,omitempty"`
	Frequency   float64 `json:"frequency,omitempty"`
	Program     int     `json:"program"`
	ProgramName string  `json:"program_name,omitempty"`
	StationName string  `json:"station_name,omitempty"`

	NowPlaying NowPlaying        `json:"now_playing"`
	History    []HistoryEntry    `json:"history"`
	BERWindow  []BERSample       `json:"ber_window"`
	BERStats   BERStats          `json:"ber_stats"`
	Station    *StationLocation  `json:"station,omitempty"`
	Relative   *RelativePosition `json:"relative,omitempty"`

	// ExpandedScale tells the display to widen the BER axis: true whenever
	// any sample in the current window exceeds 10% error rate
	ExpandedScale bool `json:"expanded_scale"`

	Recording        bool       `json:"recording"`
	RecordingFile    string     `json:"recording_file,omitempty"`
	RecordingSince   *time.Time `json:"recording_since,omitempty"`
	RecordingSeconds float64    `json:"recording_seconds,omitempty"`

	LastError string `json:"last_error,omitempty"`
}

// expandedScaleThreshold is the BER above which the display widens its axis
const expandedScaleThreshold = 0.10

type completedTrack struct {
	title  string
	artist string
	album  string
}

// Aggregator owns the live session state. All mutation goes through its
// mutex, so snapshots are never observed half-updated. Play history survives
// across sessions; everything else resets when a new session starts.
type Aggregator struct {
	mu sync.Mutex

	historyCap int
	berWindow  int
	units      Units
	userLat    *float64
	userLon    *float64
	userAlt    *float64

	state       SessionState
	sessionID   string
	frequency   float64
	program     int
	programName string
	stationName string

	now NowPlaying
	// completed is the last track for which both title and artist were
	// observed together; it is what gets archived when the track changes
	completed    *completedTrack
	inTransition bool
	titleSeen    bool
	artistSeen   bool

	history       []HistoryEntry
	ber           []BERSample
	expandedScale bool

	station  *StationLocation
	relative *RelativePosition

	recording      bool
	recordingFile  string
	recordingSince time.Time

	lastError string
}

// NewAggregator creates an aggregator sized and localized from config
func NewAggregator(cfg *Config) *Aggregator {
	return &Aggregator{
		historyCap: cfg.History.MaxEntries,
		berWindow:  cfg.BER.Window,
		units:      cfg.Location.units,
		userLat:    cfg.Location.Lat,
		userLon:    cfg.Location.Lon,
		userAlt:    cfg.Location.Altitude,
		state:      StateIdle,
	}
}

// State returns the current lifecycle state
func (a *Aggregator) State() SessionState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// StartSession resets all per-session state and enters Starting. Play
// history is deliberately retained: it is a log of tracks heard, not
// session-scoped.
func (a *Aggregator) StartSession(id string, frequency float64, program int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.state = StateStarting
	a.sessionID = id
	a.frequency = frequency
	a.program = program
	a.programName = ""
	a.stationName = ""
	a.resetNowPlayingLocked()
	a.ber = nil
	a.expandedScale = false
	a.station = nil
	a.relative = nil
	a.recording = false
	a.recordingFile = ""
	a.recordingSince = time.Time{}
	a.lastError = ""

	metrics.sessionsTotal.Inc()
	metrics.sessionState.Set(float64(StateStarting))
}

// SetStopping marks the session as shutting down
func (a *Aggregator) SetStopping() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == StateActive || a.state == StateStarting {
		a.state = StateStopping
		metrics.sessionState.Set(float64(StateStopping))
	}
}

// SetIdle destroys the session. BER series and station location are
// per-session and cleared here; history stays.
func (a *Aggregator) SetIdle() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.state = StateIdle
	a.sessionID = ""
	a.resetNowPlayingLocked()
	a.ber = nil
	a.expandedScale = false
	a.station = nil
	a.relative = nil
	a.recording = false
	a.recordingFile = ""
	a.recordingSince = time.Time{}

	metrics.sessionState.Set(float64(StateIdle))
	metrics.recordingActive.Set(0)
}

// SetRecording toggles the recording sub-state
func (a *Aggregator) SetRecording(active bool, file string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recording = active
	a.recordingFile = file
	if active {
		a.recordingSince = time.Now()
		metrics.recordingActive.Set(1)
	} else {
		a.recordingSince = time.Time{}
		metrics.recordingActive.Set(0)
	}
}

// RecordError stores a user-visible error message for the display layer
func (a *Aggregator) RecordError(msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastError = msg
}

// Apply folds one decoder event into the session state. The first recognized
// event of a starting session proves the decoder is alive and promotes the
// session to Active.
func (a *Aggregator) Apply(ev Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Lines can still be draining from a torn-down decoder; they must not
	// repopulate state the teardown just cleared, or leak a previous
	// station's metadata into the next session
	if a.state == StateIdle || a.state == StateStopping {
		return
	}

	if a.state == StateStarting {
		a.state = StateActive
		metrics.sessionState.Set(float64(StateActive))
	}

	metrics.eventsTotal.WithLabelValues(ev.eventName()).Inc()

	switch ev := ev.(type) {
	case BERReading:
		a.ber = append(a.ber, BERSample{Time: time.Now(), Value: ev.Value})
		a.recomputeExpandedScaleLocked()
		metrics.berGauge.Set(ev.Value)
	case SignalAcquired:
		// Promotion to Active already happened above
	case SignalLost:
		a.resetNowPlayingLocked()
	case StationNameInfo:
		a.stationName = ev.Name
	case StationLocationInfo:
		// Last write wins if the decoder resends a changed location
		a.station = &StationLocation{Lat: ev.Lat, Lon: ev.Lon, Altitude: ev.Altitude}
		a.computeRelativeLocked()
	case TitleInfo:
		a.applyTrackFieldLocked(&a.now.Title, ev.Text, true, false)
	case ArtistInfo:
		a.applyTrackFieldLocked(&a.now.Artist, ev.Text, false, true)
	case AlbumInfo:
		value := ev.Text
		a.now.Album = &value
		// An album line usually trails the title/artist pair; fold it into
		// the pending snapshot so it reaches the history entry
		if !a.inTransition && a.completed != nil {
			a.completed = a.trackLocked()
		}
	case ProgramInfo:
		if ev.Program == a.program {
			a.programName = ev.Name
		}
	}
}

// applyTrackFieldLocked sets a title or artist field and runs new-track
// detection. A completed track is archived to history exactly once, when a
// known field changes value; the partial combinations seen while the decoder
// announces the next track's fields one line at a time are never recorded.
func (a *Aggregator) applyTrackFieldLocked(slot **string, value string, isTitle, isArtist bool) {
	changed := *slot != nil && **slot != value
	v := value
	*slot = &v

	if a.inTransition {
		a.titleSeen = a.titleSeen || isTitle
		a.artistSeen = a.artistSeen || isArtist
		if a.titleSeen && a.artistSeen && a.now.Title != nil && a.now.Artist != nil {
			a.completed = a.trackLocked()
			a.inTransition = false
		}
		return
	}

	if changed {
		if a.completed != nil {
			a.appendHistoryLocked(*a.completed)
		}
		a.completed = nil
		a.inTransition = true
		a.titleSeen = isTitle
		a.artistSeen = isArtist
		return
	}

	if a.now.Title != nil && a.now.Artist != nil {
		a.completed = a.trackLocked()
	}
}

func (a *Aggregator) trackLocked() *completedTrack {
	ct := &completedTrack{}
	if a.now.Title != nil {
		ct.title = *a.now.Title
	}
	if a.now.Artist != nil {
		ct.artist = *a.now.Artist
	}
	if a.now.Album != nil {
		ct.album = *a.now.Album
	}
	return ct
}

func (a *Aggregator) appendHistoryLocked(t completedTrack) {
	a.history = append(a.history, HistoryEntry{
		Time:   time.Now(),
		Title:  t.title,
		Artist: t.artist,
		Album:  t.album,
	})
	if len(a.history) > a.historyCap {
		a.history = append(a.history[:0], a.history[len(a.history)-a.historyCap:]...)
	}
	metrics.historyEntries.Set(float64(len(a.history)))
}

func (a *Aggregator) resetNowPlayingLocked() {
	a.now = NowPlaying{}
	a.completed = nil
	a.inTransition = false
	a.titleSeen = false
	a.artistSeen = false
}

func (a *Aggregator) recomputeExpandedScaleLocked() {
	a.expandedScale = false
	for _, s := range a.berWindowLocked() {
		if s.Value > expandedScaleThreshold {
			a.expandedScale = true
			return
		}
	}
}

func (a *Aggregator) berWindowLocked() []BERSample {
	if len(a.ber) <= a.berWindow {
		return a.ber
	}
	return a.ber[len(a.ber)-a.berWindow:]
}

func (a *Aggregator) computeRelativeLocked() {
	a.relative = nil
	if a.station == nil || a.userLat == nil || a.userLon == nil {
		return
	}
	dist, bearing, err := DistanceAndBearing(*a.userLat, *a.userLon, a.station.Lat, a.station.Lon, a.units)
	if err != nil {
		return
	}
	rp := &RelativePosition{
		Distance:   dist,
		Bearing:    bearing,
		Cardinal:   BearingToCardinal(bearing),
		Horizontal: FormatRelativePosition(dist, bearing, a.units),
	}
	if a.userAlt != nil {
		rp.Vertical = FormatVerticalOffset(a.station.Altitude-*a.userAlt, a.units)
	}
	a.relative = rp
}

// Snapshot returns a deep copy of the current state
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap := Snapshot{
		State:         a.state.String(),
		SessionID:     a.sessionID,
		Frequency:     a.frequency,
		Program:       a.program,
		ProgramName:   a.programName,
		StationName:   a.stationName,
		ExpandedScale: a.expandedScale,
		Recording:     a.recording,
		RecordingFile: a.recordingFile,
		LastError:     a.lastError,
	}

	if a.now.Title != nil {
		v := *a.now.Title
		snap.NowPlaying.Title = &v
	}
	if a.now.Artist != nil {
		v := *a.now.Artist
		snap.NowPlaying.Artist = &v
	}
	if a.now.Album != nil {
		v := *a.now.Album
		snap.NowPlaying.Album = &v
	}

	snap.History = make([]HistoryEntry, len(a.history))
	copy(snap.History, a.history)

	window := a.berWindowLocked()
	snap.BERWindow = make([]BERSample, len(window))
	copy(snap.BERWindow, window)
	snap.BERStats = berStats(window)

	if a.station != nil {
		st := *a.station
		snap.Station = &st
	}
	if a.relative != nil {
		rp := *a.relative
		snap.Relative = &rp
	}
	if a.recording && !a.recordingSince.IsZero() {
		since := a.recordingSince
		snap.RecordingSince = &since
		snap.RecordingSeconds = time.Since(since).Seconds()
	}

	return snap
}

// berStats summarizes a BER window using gonum's descriptive statistics
func berStats(window []BERSample) BERStats {
	if len(window) == 0 {
		return BERStats{}
	}
	values := make([]float64, len(window))
	for i, s := range window {
		values[i] = s.Value
	}
	sort.Float64s(values)
	return BERStats{
		Count: len(values),
		Mean:  stat.Mean(values, nil),
		Min:   values[0],
		Max:   values[len(values)-1],
		P95:   stat.Quantile(0.95, stat.Empirical, values, nil),
	}
}
