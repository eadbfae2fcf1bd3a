package geolocation

import (
	"context"

	"github.com/ogurasousui/attendance-sync/internal/core/geo"
)

// StaticPlatform は固定座標を返す Platform です。CLI から座標を指定する場合に使います。
type StaticPlatform struct {
	Latitude       float64
	Longitude      float64
	AccuracyMeters float64
	Clock          Clock
}

func (s StaticPlatform) CurrentPosition(ctx context.Context, _ Options) (geo.Reading, error) {
	if err := ctx.Err(); err != nil {
		return geo.Reading{}, err
	}
	clock := s.Clock
	if clock == nil {
		clock = realClock{}
	}
	return geo.Reading{
		Latitude:          s.Latitude,
		Longitude:         s.Longitude,
		AccuracyMeters:    s.AccuracyMeters,
		CapturedAtEpochMs: clock.Now().UnixMilli(),
	}, nil
}
