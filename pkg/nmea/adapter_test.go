package nmea

import (
	"math"
	"testing"
	"time"
)

const (
	rmcValid   = "$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A"
	rmcInvalid = "$GPRMC,123519,V,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*7D"
	ggaValid   = "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47"
)

func TestParseRMC(t *testing.T) {
	a := New()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	fix, complete, err := a.Parse(rmcValid, now)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !complete {
		t.Fatal("RMC should complete a position report")
	}
	if !fix.Valid() {
		t.Fatal("fix should be valid")
	}
	if math.Abs(fix.Latitude-48.1173) > 0.001 {
		t.Errorf("latitude = %v, want ~48.1173", fix.Latitude)
	}
	if math.Abs(fix.Longitude-11.5167) > 0.001 {
		t.Errorf("longitude = %v, want ~11.5167", fix.Longitude)
	}
	if math.Abs(fix.SpeedMPS-22.4*knotsToMPS) > 0.001 {
		t.Errorf("speed = %v m/s, want 22.4 knots converted", fix.SpeedMPS)
	}
	if fix.Provider != providerName {
		t.Errorf("provider = %q, want %q", fix.Provider, providerName)
	}
	if fix.Timestamp.Year() != 1994 || fix.Timestamp.Hour() != 12 {
		t.Errorf("timestamp = %v, want sentence date 1994-03-23 12:35:19", fix.Timestamp)
	}
}

func TestSentenceDateCenturyPivot(t *testing.T) {
	// Same sentence with date 230324: years below 80 land in the 2000s.
	modern := "$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230324,003.1,W*61"

	a := New()
	fix, _, err := a.Parse(modern, time.Now().UTC())
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if fix.Timestamp.Year() != 2024 {
		t.Errorf("year = %d, want 2024", fix.Timestamp.Year())
	}
}

func TestParseInvalidRMCYieldsIdleOnlyFix(t *testing.T) {
	a := New()
	now := time.Now().UTC()

	fix, complete, err := a.Parse(rmcInvalid, now)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !complete {
		t.Fatal("invalid RMC should still complete a report")
	}
	if fix.Valid() {
		t.Error("fix from validity V should be idle-only")
	}
	if !fix.Timestamp.Equal(now) {
		t.Errorf("idle-only fix timestamp = %v, want caller clock %v", fix.Timestamp, now)
	}
}

func TestGGAContributesAltitudeAndAccuracy(t *testing.T) {
	a := New()
	now := time.Now().UTC()

	if _, complete, err := a.Parse(ggaValid, now); err != nil || complete {
		t.Fatalf("GGA parse = complete %v, err %v; want incomplete, nil", complete, err)
	}

	fix, _, err := a.Parse(rmcValid, now)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if math.Abs(fix.AltitudeM-545.4) > 0.001 {
		t.Errorf("altitude = %v, want 545.4", fix.AltitudeM)
	}
	if math.Abs(fix.AccuracyM-0.9*hdopBaseM) > 0.001 {
		t.Errorf("accuracy = %v, want HDOP-derived %v", fix.AccuracyM, 0.9*hdopBaseM)
	}
}

func TestAccuracyFallsBackWithoutGGA(t *testing.T) {
	a := New()
	fix, _, err := a.Parse(rmcValid, time.Now().UTC())
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if fix.AccuracyM != defaultAccuracyM {
		t.Errorf("accuracy = %v, want default %v", fix.AccuracyM, defaultAccuracyM)
	}
}

func TestGarbageSentence(t *testing.T) {
	a := New()
	if _, _, err := a.Parse("not an nmea sentence", time.Now().UTC()); err == nil {
		t.Error("expected error for garbage input")
	}
}

func TestUnhandledSentenceIgnored(t *testing.T) {
	a := New()
	// GSV satellite info carries no position.
	gsv := "$GPGSV,3,1,11,03,03,111,00,04,15,270,00,06,01,010,00,13,06,292,00*74"
	fix, complete, err := a.Parse(gsv, time.Now().UTC())
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if complete {
		t.Errorf("GSV should not complete a report, got fix %+v", fix)
	}
}
