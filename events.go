package main

// Event is a structured fact extracted from one line of decoder diagnostic
// output. Concrete event types carry only the fields the line provides;
// assembly of multi-line records (e.g. title + artist) happens in the
// aggregator, not here.
type Event interface {
	eventName() string
}

// BERReading reports the decoder's current bit error rate, always in [0, 1]
type BERReading struct {
	Value float64
}

// SignalLost indicates the decoder lost synchronization with the station
type SignalLost struct{}

// SignalAcquired indicates the decoder synchronized with the station
type SignalAcquired struct{}

// StationNameInfo carries the station's broadcast name
type StationNameInfo struct {
	Name string
}

// StationLocationInfo carries the station's reported transmitter coordinates.
// Altitude is in meters.
type StationLocationInfo struct {
	Lat      float64
	Lon      float64
	Altitude float64
}

// TitleInfo carries the now-playing track title
type TitleInfo struct {
	Text string
}

// ArtistInfo carries the now-playing track artist
type ArtistInfo struct {
	Text string
}

// AlbumInfo carries the now-playing track album
type AlbumInfo struct {
	Text string
}

// ProgramInfo carries an HD Radio audio program announcement
type ProgramInfo struct {
	Program int
	Name    string
}

func (BERReading) eventName() string          { return "ber" }
func (SignalLost) eventName() string          { return "signal_lost" }
func (SignalAcquired) eventName() string      { return "signal_acquired" }
func (StationNameInfo) eventName() string     { return "station_name" }
func (StationLocationInfo) eventName() string { return "station_location" }
func (TitleInfo) eventName() string           { return "title" }
func (ArtistInfo) eventName() string          { return "artist" }
func (AlbumInfo) eventName() string           { return "album" }
func (ProgramInfo) eventName() string         { return "program" }
