// Package nmea converts NMEA 0183 sentences from serial GPS receivers
// into engine fixes.
package nmea

import (
	"fmt"
	"time"

	gonmea "github.com/adrianmo/go-nmea"

	"github.com/fieldtrack/fieldtrack/pkg"
)

const (
	knotsToMPS = 0.514444

	// Receivers without a reported HDOP get a conservative accuracy
	// estimate so downstream filtering stays meaningful.
	defaultAccuracyM = 15.0
	hdopBaseM        = 5.0

	providerName = "nmea"
)

// Adapter parses a stream of NMEA sentences and assembles fixes. RMC
// sentences carry position, speed and date; a GGA sentence seen for the
// same cycle contributes altitude and HDOP-derived accuracy.
type Adapter struct {
	lastAltitude float64
	lastHDOP     float64
	haveGGA      bool
}

// New returns an Adapter.
func New() *Adapter {
	return &Adapter{}
}

// Parse consumes one sentence. It returns a fix and true when the
// sentence completes a position report (RMC), or false when the
// sentence only updates internal state (GGA and everything else).
//
// An RMC sentence with validity "V" means the receiver has lost its
// fix; that is reported as an idle-only fix so the caller still drives
// idle bookkeeping.
func (a *Adapter) Parse(raw string, now time.Time) (pkg.Fix, bool, error) {
	s, err := gonmea.Parse(raw)
	if err != nil {
		return pkg.Fix{}, false, fmt.Errorf("failed to parse sentence: %w", err)
	}

	switch m := s.(type) {
	case gonmea.GGA:
		a.lastAltitude = m.Altitude
		a.lastHDOP = m.HDOP
		a.haveGGA = true
		return pkg.Fix{}, false, nil

	case gonmea.RMC:
		if m.Validity != gonmea.ValidRMC {
			return pkg.IdleOnlyFix(providerName, now), true, nil
		}
		fix := pkg.Fix{
			Latitude:  m.Latitude,
			Longitude: m.Longitude,
			SpeedMPS:  m.Speed * knotsToMPS,
			AccuracyM: a.accuracy(),
			Provider:  providerName,
			Timestamp: sentenceTime(m, now),
		}
		if a.haveGGA {
			fix.AltitudeM = a.lastAltitude
		}
		return fix, true, nil

	default:
		return pkg.Fix{}, false, nil
	}
}

func (a *Adapter) accuracy() float64 {
	if !a.haveGGA || a.lastHDOP <= 0 {
		return defaultAccuracyM
	}
	return a.lastHDOP * hdopBaseM
}

// sentenceTime combines the RMC date and time fields. Sentences without
// a valid date fall back to the wall clock passed by the caller.
func sentenceTime(m gonmea.RMC, now time.Time) time.Time {
	if !m.Date.Valid || !m.Time.Valid {
		return now
	}
	// Two-digit year with the usual GPS pivot: 80-99 are 1900s.
	year := 2000 + m.Date.YY
	if m.Date.YY >= 80 {
		year = 1900 + m.Date.YY
	}
	return time.Date(
		year, time.Month(m.Date.MM), m.Date.DD,
		m.Time.Hour, m.Time.Minute, m.Time.Second,
		m.Time.Millisecond*int(time.Millisecond), time.UTC)
}
