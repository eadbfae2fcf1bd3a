package geo

import "time"

// Reading は端末から取得した位置情報を正規化したものです。生成後は変更しません。
type Reading struct {
	Latitude          float64
	Longitude         float64
	AccuracyMeters    float64
	CapturedAtEpochMs int64
}

// Coordinate は Reading の座標部分を返します。
func (r Reading) Coordinate() Coordinate {
	return Coordinate{Latitude: r.Latitude, Longitude: r.Longitude}
}

// CapturedAt は取得時刻を time.Time で返します。
func (r Reading) CapturedAt() time.Time {
	return time.UnixMilli(r.CapturedAtEpochMs)
}

// IsZero は未取得の Reading かどうかを返します。
func (r Reading) IsZero() bool {
	return r == Reading{}
}
