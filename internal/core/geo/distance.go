package geo

import (
	"errors"
	"math"
)

// EarthRadiusMeters は haversine 計算に用いる地球半径です。
const EarthRadiusMeters = 6371000.0

// ErrNoZones はゾーンが一つも与えられなかった場合のエラーです。
var ErrNoZones = errors.New("geo: no zones configured")

// Coordinate は十進度で表した緯度経度です。
type Coordinate struct {
	Latitude  float64
	Longitude float64
}

// Zone は出勤可能な地点を表す名前付きの円です。
type Zone struct {
	Name         string
	Latitude     float64
	Longitude    float64
	RadiusMeters float64
}

// Center はゾーン中心の座標を返します。
func (z Zone) Center() Coordinate {
	return Coordinate{Latitude: z.Latitude, Longitude: z.Longitude}
}

// Match は NearestZone の判定結果です。
type Match struct {
	Zone           Zone
	DistanceMeters float64
	// WithinRadius は最寄りゾーンに限らず、いずれかのゾーン半径内にいれば true です。
	WithinRadius bool
}

// DistanceMeters は 2 点間の大圏距離を haversine 式でメートル単位で返します。
func DistanceMeters(a, b Coordinate) float64 {
	phi1 := toRadians(a.Latitude)
	phi2 := toRadians(b.Latitude)
	dPhi := toRadians(b.Latitude - a.Latitude)
	dLambda := toRadians(b.Longitude - a.Longitude)

	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	// 対蹠点付近では丸め誤差で h が 1 を超えるため [0, 1] に収めます。
	h = math.Min(1, math.Max(0, h))
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusMeters * c
}

// NearestZone は最も近いゾーンを返します。距離が等しい場合は先に現れたゾーンが優先されます。
func NearestZone(point Coordinate, zones []Zone) (Match, error) {
	if len(zones) == 0 {
		return Match{}, ErrNoZones
	}

	best := Match{DistanceMeters: math.Inf(1)}
	within := false
	for _, zone := range zones {
		d := DistanceMeters(point, zone.Center())
		if d <= zone.RadiusMeters {
			within = true
		}
		if d < best.DistanceMeters {
			best.Zone = zone
			best.DistanceMeters = d
		}
	}
	best.WithinRadius = within

	return best, nil
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
