package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Event
	}{
		{"title", "Title: Purple Rain", TitleInfo{Text: "Purple Rain"}},
		{"title lowercase", "title: Purple Rain", TitleInfo{Text: "Purple Rain"}},
		{"title with timestamp prefix", "13:05:24 Title: Purple Rain", TitleInfo{Text: "Purple Rain"}},
		{"artist", "Artist: Prince", ArtistInfo{Text: "Prince"}},
		{"album", "Album: Purple Rain", AlbumInfo{Text: "Purple Rain"}},
		{"ber", "BER: 0.000432", BERReading{Value: 0.000432}},
		{"ber embedded", "13:05:24 Audio bit error rate: BER: 0.003", BERReading{Value: 0.003}},
		{"ber zero", "BER: 0", BERReading{Value: 0}},
		{"ber one", "BER: 1", BERReading{Value: 1}},
		{"station name", "Station name: KXYZ-FM", StationNameInfo{Name: "KXYZ-FM"}},
		{"station location", "Station location: 35.6042, -97.5067, 307m", StationLocationInfo{Lat: 35.6042, Lon: -97.5067, Altitude: 307}},
		{"audio program", "Audio program 0: The Spy FM", ProgramInfo{Program: 0, Name: "The Spy FM"}},
		{"audio program 3", "Audio program 3: Jazz", ProgramInfo{Program: 3, Name: "Jazz"}},
		{"synchronized", "Synchronized", SignalAcquired{}},
		{"synchronized with prefix", "13:05:24 Synchronized", SignalAcquired{}},
		{"lost synchronization", "Lost synchronization", SignalLost{}},
		{"lost sync", "Lost sync", SignalLost{}},
		{"title wins over embedded ber", "Title: BER: stories", TitleInfo{Text: "BER: stories"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := ParseLogLine(tt.line)
			require.True(t, ok, "line should parse: %q", tt.line)
			assert.Equal(t, tt.want, ev)
		})
	}
}

func TestParseLogLineUnrecognized(t *testing.T) {
	lines := []string{
		"",
		"   ",
		"Found 1 device(s):",
		"Title:",
		"BER: 1.5",
		"BER: -0.1",
		"BER: abc",
		"Audio program 4: Too High",
		"Station location: 95.0, -97.5, 307m",
		"Station location: 35.6, -197.5, 307m",
		"some random log chatter",
	}

	for _, line := range lines {
		ev, ok := ParseLogLine(line)
		assert.False(t, ok, "line should not parse: %q", line)
		assert.Nil(t, ev)
	}
}
