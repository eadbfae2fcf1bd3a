package geo

import (
	"errors"
	"math"
	"testing"
)

var campus = Coordinate{Latitude: -7.8003, Longitude: 110.3752}

// metersToLatDegrees は子午線方向の距離を緯度差に変換します。
func metersToLatDegrees(m float64) float64 {
	return m / EarthRadiusMeters * 180 / math.Pi
}

func TestDistanceMeters_IdentityAndSymmetry(t *testing.T) {
	t.Parallel()

	points := []Coordinate{
		campus,
		{Latitude: -6.2088, Longitude: 106.8456},
		{Latitude: 35.6812, Longitude: 139.7671},
		{Latitude: 0, Longitude: 179.9999},
		{Latitude: 0, Longitude: -179.9999},
	}

	for _, a := range points {
		if d := DistanceMeters(a, a); d != 0 {
			t.Fatalf("expected zero distance for %+v, got %v", a, d)
		}
		for _, b := range points {
			ab := DistanceMeters(a, b)
			ba := DistanceMeters(b, a)
			if ab < 0 {
				t.Fatalf("negative distance between %+v and %+v", a, b)
			}
			if math.Abs(ab-ba) > 1e-6 {
				t.Fatalf("asymmetric distance: %v vs %v", ab, ba)
			}
		}
	}
}

func TestDistanceMeters_KnownValue(t *testing.T) {
	t.Parallel()

	// 赤道上の経度 1 度はおよそ 111,195m
	got := DistanceMeters(Coordinate{0, 0}, Coordinate{0, 1})
	want := EarthRadiusMeters * math.Pi / 180
	if math.Abs(got-want) > 1e-6 {
		t.Fatalf("want %v got %v", want, got)
	}

	// 日付変更線をまたいでも短い方の距離になる
	across := DistanceMeters(Coordinate{0, 179.5}, Coordinate{0, -179.5})
	if math.Abs(across-want) > 1e-6 {
		t.Fatalf("expected antimeridian distance %v, got %v", want, across)
	}
}

func TestDistanceMeters_Antipodes(t *testing.T) {
	t.Parallel()

	halfCircumference := EarthRadiusMeters * math.Pi
	for lat := -89.5; lat <= 89.5; lat += 0.73 {
		for lng := -179.0; lng <= 180; lng += 1.9 {
			a := Coordinate{Latitude: lat, Longitude: lng}
			b := Coordinate{Latitude: -lat, Longitude: lng - 180}
			if lng < 0 {
				b.Longitude = lng + 180
			}
			d := DistanceMeters(a, b)
			if math.IsNaN(d) || d < 0 || d > halfCircumference+1e-6 {
				t.Fatalf("invalid antipodal distance %v between %+v and %+v", d, a, b)
			}
			if math.Abs(d-halfCircumference) > 1 {
				t.Fatalf("expected ~%v between %+v and %+v, got %v", halfCircumference, a, b, d)
			}
		}
	}

	// 対蹠点にあるゾーンでも最寄りとして選ばれる
	far := Zone{Name: "far", Latitude: 86.78, Longitude: 1, RadiusMeters: 100}
	match, err := NearestZone(Coordinate{Latitude: -86.78, Longitude: -179}, []Zone{far})
	if err != nil {
		t.Fatalf("NearestZone returned error: %v", err)
	}
	if match.Zone.Name != "far" || math.IsInf(match.DistanceMeters, 0) {
		t.Fatalf("expected antipodal zone to be selected, got %+v", match)
	}
}

func TestNearestZone_CampusWithinRadius(t *testing.T) {
	t.Parallel()

	zones := []Zone{{Name: "campus", Latitude: campus.Latitude, Longitude: campus.Longitude, RadiusMeters: 800}}

	match, err := NearestZone(campus, zones)
	if err != nil {
		t.Fatalf("NearestZone returned error: %v", err)
	}
	if !match.WithinRadius {
		t.Fatal("expected campus center to be within radius")
	}
	if match.DistanceMeters != 0 {
		t.Fatalf("expected zero distance, got %v", match.DistanceMeters)
	}
}

func TestNearestZone_WithinAnyZone(t *testing.T) {
	t.Parallel()

	reading := Coordinate{Latitude: 0, Longitude: 0}
	zoneA := Zone{Name: "A", Latitude: metersToLatDegrees(600), Longitude: 0, RadiusMeters: 500}
	zoneB := Zone{Name: "B", Latitude: -metersToLatDegrees(750), Longitude: 0, RadiusMeters: 800}

	match, err := NearestZone(reading, []Zone{zoneA, zoneB})
	if err != nil {
		t.Fatalf("NearestZone returned error: %v", err)
	}
	if match.Zone.Name != "A" {
		t.Fatalf("expected nearest zone A, got %s", match.Zone.Name)
	}
	if math.Abs(match.DistanceMeters-600) > 0.01 {
		t.Fatalf("expected ~600m, got %v", match.DistanceMeters)
	}
	if !match.WithinRadius {
		t.Fatal("expected reading inside zone B to count as within radius")
	}
}

func TestNearestZone_OutsideEveryZone(t *testing.T) {
	t.Parallel()

	reading := Coordinate{Latitude: 0, Longitude: 0}
	zones := []Zone{
		{Name: "A", Latitude: metersToLatDegrees(900), Longitude: 0, RadiusMeters: 500},
		{Name: "B", Latitude: -metersToLatDegrees(1200), Longitude: 0, RadiusMeters: 800},
	}

	match, err := NearestZone(reading, zones)
	if err != nil {
		t.Fatalf("NearestZone returned error: %v", err)
	}
	if match.Zone.Name != "A" {
		t.Fatalf("expected nearest zone A, got %s", match.Zone.Name)
	}
	if match.WithinRadius {
		t.Fatal("expected reading to be outside every zone")
	}
}

func TestNearestZone_TieKeepsFirst(t *testing.T) {
	t.Parallel()

	offset := metersToLatDegrees(100)
	zones := []Zone{
		{Name: "north", Latitude: offset, Longitude: 0, RadiusMeters: 10},
		{Name: "south", Latitude: -offset, Longitude: 0, RadiusMeters: 10},
	}

	match, err := NearestZone(Coordinate{}, zones)
	if err != nil {
		t.Fatalf("NearestZone returned error: %v", err)
	}
	if match.Zone.Name != "north" {
		t.Fatalf("expected first zone on tie, got %s", match.Zone.Name)
	}
}

func TestNearestZone_NoZones(t *testing.T) {
	t.Parallel()

	if _, err := NearestZone(campus, nil); !errors.Is(err, ErrNoZones) {
		t.Fatalf("expected ErrNoZones, got %v", err)
	}
}
