package main

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.History.MaxEntries = 5
	cfg.BER.Window = 10
	return cfg
}

func newActiveAggregator(t *testing.T) *Aggregator {
	t.Helper()
	a := NewAggregator(testConfig())
	a.StartSession("test-session", 99.5, 0)
	return a
}

func TestAggregatorLifecycle(t *testing.T) {
	a := NewAggregator(testConfig())
	assert.Equal(t, StateIdle, a.State())

	a.StartSession("s1", 99.5, 1)
	assert.Equal(t, StateStarting, a.State())

	// The first recognized event promotes to Active
	a.Apply(BERReading{Value: 0.001})
	assert.Equal(t, StateActive, a.State())

	a.SetStopping()
	assert.Equal(t, StateStopping, a.State())

	a.SetIdle()
	assert.Equal(t, StateIdle, a.State())

	snap := a.Snapshot()
	assert.Equal(t, "idle", snap.State)
	assert.Empty(t, snap.SessionID)
	assert.Nil(t, snap.NowPlaying.Title)
	assert.Empty(t, snap.BERWindow)
}

func TestAggregatorNowPlaying(t *testing.T) {
	a := newActiveAggregator(t)

	a.Apply(TitleInfo{Text: "Purple Rain"})
	a.Apply(ArtistInfo{Text: "Prince"})
	a.Apply(AlbumInfo{Text: "Purple Rain"})

	snap := a.Snapshot()
	require.NotNil(t, snap.NowPlaying.Title)
	require.NotNil(t, snap.NowPlaying.Artist)
	require.NotNil(t, snap.NowPlaying.Album)
	assert.Equal(t, "Purple Rain", *snap.NowPlaying.Title)
	assert.Equal(t, "Prince", *snap.NowPlaying.Artist)
	assert.Empty(t, snap.History, "first track is still playing, nothing completed")
}

func TestAggregatorTrackChangeAppendsOnce(t *testing.T) {
	a := newActiveAggregator(t)

	a.Apply(TitleInfo{Text: "Track A"})
	a.Apply(ArtistInfo{Text: "Artist B"})

	// The decoder repeats current metadata periodically; repeats are not
	// track changes
	a.Apply(TitleInfo{Text: "Track A"})
	a.Apply(ArtistInfo{Text: "Artist B"})
	assert.Empty(t, a.Snapshot().History)

	// New track announced one field at a time
	a.Apply(TitleInfo{Text: "Track C"})
	a.Apply(ArtistInfo{Text: "Artist D"})

	snap := a.Snapshot()
	require.Len(t, snap.History, 1)
	assert.Equal(t, "Track A", snap.History[0].Title)
	assert.Equal(t, "Artist B", snap.History[0].Artist)

	require.NotNil(t, snap.NowPlaying.Title)
	assert.Equal(t, "Track C", *snap.NowPlaying.Title)
	assert.Equal(t, "Artist D", *snap.NowPlaying.Artist)
}

func TestAggregatorArtistOnlyChange(t *testing.T) {
	a := newActiveAggregator(t)

	a.Apply(TitleInfo{Text: "Track A"})
	a.Apply(ArtistInfo{Text: "Artist B"})

	// Artist changes first this time
	a.Apply(ArtistInfo{Text: "Artist E"})
	a.Apply(TitleInfo{Text: "Track F"})

	snap := a.Snapshot()
	require.Len(t, snap.History, 1)
	assert.Equal(t, "Track A", snap.History[0].Title)
	assert.Equal(t, "Artist B", snap.History[0].Artist)
}

func TestAggregatorPartialTrackNeverArchived(t *testing.T) {
	a := newActiveAggregator(t)

	// Only a title, never an artist: nothing to archive when it changes
	a.Apply(TitleInfo{Text: "Track A"})
	a.Apply(TitleInfo{Text: "Track B"})
	a.Apply(TitleInfo{Text: "Track C"})

	assert.Empty(t, a.Snapshot().History)
}

func TestAggregatorAlbumCarriedIntoHistory(t *testing.T) {
	a := newActiveAggregator(t)

	a.Apply(TitleInfo{Text: "Track A"})
	a.Apply(ArtistInfo{Text: "Artist B"})
	// Album arrives after the title/artist pair, as nrsc5 announces it
	a.Apply(AlbumInfo{Text: "Album X"})

	a.Apply(TitleInfo{Text: "Track C"})
	a.Apply(ArtistInfo{Text: "Artist D"})

	snap := a.Snapshot()
	require.Len(t, snap.History, 1)
	assert.Equal(t, "Album X", snap.History[0].Album)
}

func TestAggregatorHistoryCap(t *testing.T) {
	a := newActiveAggregator(t)

	for i := 0; i < 20; i++ {
		a.Apply(TitleInfo{Text: fmt.Sprintf("Track %d", i)})
		a.Apply(ArtistInfo{Text: fmt.Sprintf("Artist %d", i)})
	}

	snap := a.Snapshot()
	require.Len(t, snap.History, 5)
	// Oldest retained entry is the 15th track (tracks 0-13 evicted, track 19
	// is still now-playing)
	assert.Equal(t, "Track 14", snap.History[0].Title)
	assert.Equal(t, "Track 18", snap.History[4].Title)
}

func TestAggregatorHistorySurvivesSessions(t *testing.T) {
	a := newActiveAggregator(t)

	a.Apply(TitleInfo{Text: "Track A"})
	a.Apply(ArtistInfo{Text: "Artist B"})
	a.Apply(TitleInfo{Text: "Track C"})
	a.Apply(ArtistInfo{Text: "Artist D"})
	require.Len(t, a.Snapshot().History, 1)

	a.SetStopping()
	a.SetIdle()
	a.StartSession("s2", 101.1, 0)

	snap := a.Snapshot()
	assert.Len(t, snap.History, 1, "history is retained across sessions")
	assert.Nil(t, snap.NowPlaying.Title, "now playing resets per session")
	assert.Empty(t, snap.BERWindow, "BER series resets per session")
}

func TestAggregatorSignalLostResetsNowPlaying(t *testing.T) {
	a := newActiveAggregator(t)

	a.Apply(TitleInfo{Text: "Track A"})
	a.Apply(ArtistInfo{Text: "Artist B"})
	a.Apply(SignalLost{})

	snap := a.Snapshot()
	assert.Nil(t, snap.NowPlaying.Title)
	assert.Nil(t, snap.NowPlaying.Artist)
	assert.Empty(t, snap.History, "losing signal is not a track change")

	// Same track re-announced after reacquisition must not duplicate history
	a.Apply(SignalAcquired{})
	a.Apply(TitleInfo{Text: "Track A"})
	a.Apply(ArtistInfo{Text: "Artist B"})
	assert.Empty(t, a.Snapshot().History)
}

func TestAggregatorBERWindow(t *testing.T) {
	a := newActiveAggregator(t)

	for i := 0; i < 15; i++ {
		a.Apply(BERReading{Value: 0.01})
	}

	snap := a.Snapshot()
	assert.Len(t, snap.BERWindow, 10, "window is bounded")
	assert.Equal(t, 10, snap.BERStats.Count)
	assert.InDelta(t, 0.01, snap.BERStats.Mean, 1e-9)
	assert.InDelta(t, 0.01, snap.BERStats.Min, 1e-9)
	assert.InDelta(t, 0.01, snap.BERStats.Max, 1e-9)
	assert.False(t, snap.ExpandedScale)
}

func TestAggregatorExpandedScale(t *testing.T) {
	a := newActiveAggregator(t)

	a.Apply(BERReading{Value: 0.05})
	assert.False(t, a.Snapshot().ExpandedScale)

	a.Apply(BERReading{Value: 0.15})
	assert.True(t, a.Snapshot().ExpandedScale, "any sample above 10% widens the scale")

	// Once the high sample leaves the window the scale narrows again
	for i := 0; i < 10; i++ {
		a.Apply(BERReading{Value: 0.01})
	}
	assert.False(t, a.Snapshot().ExpandedScale)
}

func TestAggregatorStationLocation(t *testing.T) {
	cfg := testConfig()
	lat, lon, alt := 35.4676, -97.5164, 370.0
	cfg.Location.Lat = &lat
	cfg.Location.Lon = &lon
	cfg.Location.Altitude = &alt

	a := NewAggregator(cfg)
	a.StartSession("s1", 99.5, 0)
	a.Apply(StationLocationInfo{Lat: 35.6042, Lon: -97.5067, Altitude: 307})

	snap := a.Snapshot()
	require.NotNil(t, snap.Station)
	assert.Equal(t, 35.6042, snap.Station.Lat)

	require.NotNil(t, snap.Relative)
	assert.InDelta(t, 15.2, snap.Relative.Distance, 1)
	assert.Equal(t, "North", snap.Relative.Cardinal)
	assert.Equal(t, "63.0 m below", snap.Relative.Vertical)
}

func TestAggregatorStationLocationWithoutUserLocation(t *testing.T) {
	a := newActiveAggregator(t)
	a.Apply(StationLocationInfo{Lat: 35.6042, Lon: -97.5067, Altitude: 307})

	snap := a.Snapshot()
	require.NotNil(t, snap.Station)
	assert.Nil(t, snap.Relative, "no relative position without a configured user location")
}

func TestAggregatorProgramName(t *testing.T) {
	a := newActiveAggregator(t)

	a.Apply(ProgramInfo{Program: 1, Name: "Other Program"})
	assert.Empty(t, a.Snapshot().ProgramName, "announcements for other programs are ignored")

	a.Apply(ProgramInfo{Program: 0, Name: "The Spy FM"})
	assert.Equal(t, "The Spy FM", a.Snapshot().ProgramName)
}

func TestAggregatorStationName(t *testing.T) {
	a := newActiveAggregator(t)
	a.Apply(StationNameInfo{Name: "KXYZ-FM"})
	assert.Equal(t, "KXYZ-FM", a.Snapshot().StationName)
}

func TestAggregatorDiscardsEventsOutsideSession(t *testing.T) {
	a := newActiveAggregator(t)
	a.Apply(BERReading{Value: 0.001})
	require.Equal(t, StateActive, a.State())

	a.SetStopping()
	a.Apply(TitleInfo{Text: "Ghost Song"})
	a.Apply(BERReading{Value: 0.5})
	assert.Equal(t, StateStopping, a.State(), "stale lines must not revive a stopping session")

	a.SetIdle()
	a.Apply(TitleInfo{Text: "Ghost Song"})
	a.Apply(ArtistInfo{Text: "Ghost Band"})
	a.Apply(BERReading{Value: 0.5})
	a.Apply(StationNameInfo{Name: "KOLD-FM"})

	snap := a.Snapshot()
	assert.Equal(t, "idle", snap.State)
	assert.Nil(t, snap.NowPlaying.Title)
	assert.Nil(t, snap.NowPlaying.Artist)
	assert.Empty(t, snap.BERWindow)
	assert.Empty(t, snap.StationName)
	assert.Empty(t, snap.History)
}

func TestAggregatorStaleLineCannotPromoteNewSession(t *testing.T) {
	a := newActiveAggregator(t)
	a.Apply(TitleInfo{Text: "Old Song"})
	a.SetStopping()
	a.SetIdle()

	// Anything drained between teardown and the next start is dropped, so
	// the fresh session only activates on its own decoder's output
	a.Apply(TitleInfo{Text: "Old Song"})
	a.StartSession("s2", 101.1, 0)
	require.Equal(t, StateStarting, a.State())
	assert.Nil(t, a.Snapshot().NowPlaying.Title)

	a.Apply(TitleInfo{Text: "New Song"})
	assert.Equal(t, StateActive, a.State())
	assert.Equal(t, "New Song", *a.Snapshot().NowPlaying.Title)
}

func TestAggregatorSnapshotIsolation(t *testing.T) {
	a := newActiveAggregator(t)
	a.Apply(TitleInfo{Text: "Track A"})
	a.Apply(ArtistInfo{Text: "Artist B"})
	a.Apply(BERReading{Value: 0.01})

	snap := a.Snapshot()
	*snap.NowPlaying.Title = "mutated"
	snap.BERWindow[0].Value = 99

	fresh := a.Snapshot()
	assert.Equal(t, "Track A", *fresh.NowPlaying.Title)
	assert.Equal(t, 0.01, fresh.BERWindow[0].Value)
}
