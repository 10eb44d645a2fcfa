package main

import (
	"regexp"
	"strconv"
	"strings"
)

// Regex patterns for parsing nrsc5 diagnostic output. The decoder emits one
// record per line on stderr; each pattern below is matched in order and the
// first match wins. Lines matching nothing are expected noise and ignored.
var (
	// Optional timestamp prefix emitted by some nrsc5 builds
	// Example: 13:05:24 Title: Purple Rain
	timestampPrefixPattern = regexp.MustCompile(`^\d{2}:\d{2}:\d{2}\s+`)

	// Example: Title: Purple Rain
	titlePattern = regexp.MustCompile(`(?i)^Title:\s*(.+)$`)

	// Example: Artist: Prince
	artistPattern = regexp.MustCompile(`(?i)^Artist:\s*(.+)$`)

	// Example: Album: Purple Rain
	albumPattern = regexp.MustCompile(`(?i)^Album:\s*(.+)$`)

	// Example: BER: 0.000432
	berPattern = regexp.MustCompile(`\bBER:\s*([0-9.eE+-]+)`)

	// Example: Station name: KXYZ-FM
	stationNamePattern = regexp.MustCompile(`(?i)^Station name:\s*(.+)$`)

	// Example: Station location: 35.6042, -97.5067, 307m
	stationLocationPattern = regexp.MustCompile(`(?i)^Station location:\s*([0-9.+-]+),\s*([0-9.+-]+),\s*([0-9.+-]+)m`)

	// Example: Audio program 0: The Spy FM
	audioProgramPattern = regexp.MustCompile(`(?i)^Audio program\s+(\d+):\s*(.+)$`)
)

// ParseLogLine turns one line of decoder diagnostic text into a typed Event.
// Returns (nil, false) for anything unrecognized: empty lines, log chatter,
// and numeric fields outside their valid range (never clamped, so a bogus
// reading cannot corrupt the BER series).
func ParseLogLine(line string) (Event, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, false
	}
	line = timestampPrefixPattern.ReplaceAllString(line, "")

	if m := titlePattern.FindStringSubmatch(line); m != nil {
		return TitleInfo{Text: strings.TrimSpace(m[1])}, true
	}
	if m := artistPattern.FindStringSubmatch(line); m != nil {
		return ArtistInfo{Text: strings.TrimSpace(m[1])}, true
	}
	if m := albumPattern.FindStringSubmatch(line); m != nil {
		return AlbumInfo{Text: strings.TrimSpace(m[1])}, true
	}
	if m := berPattern.FindStringSubmatch(line); m != nil {
		value, err := strconv.ParseFloat(m[1], 64)
		if err != nil || value < 0 || value > 1 {
			return nil, false
		}
		return BERReading{Value: value}, true
	}
	if m := stationLocationPattern.FindStringSubmatch(line); m != nil {
		lat, errLat := strconv.ParseFloat(m[1], 64)
		lon, errLon := strconv.ParseFloat(m[2], 64)
		alt, errAlt := strconv.ParseFloat(m[3], 64)
		if errLat != nil || errLon != nil || errAlt != nil || !validCoordinate(lat, lon) {
			return nil, false
		}
		return StationLocationInfo{Lat: lat, Lon: lon, Altitude: alt}, true
	}
	if m := stationNamePattern.FindStringSubmatch(line); m != nil {
		return StationNameInfo{Name: strings.TrimSpace(m[1])}, true
	}
	if m := audioProgramPattern.FindStringSubmatch(line); m != nil {
		program, err := strconv.Atoi(m[1])
		if err != nil || program < 0 || program > 3 {
			return nil, false
		}
		return ProgramInfo{Program: program, Name: strings.TrimSpace(m[2])}, true
	}
	if strings.Contains(line, "Synchronized") {
		return SignalAcquired{}, true
	}
	if strings.Contains(line, "Lost synchronization") || strings.Contains(line, "Lost sync") {
		return SignalLost{}, true
	}

	return nil, false
}
