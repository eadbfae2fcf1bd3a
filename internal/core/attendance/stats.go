package attendance

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Stats は勤怠記録の集計結果です。
type Stats struct {
	TotalDays    int
	TotalPresent int
	TotalLate    int
	TotalAbsent  int
	// Streak は直近から遡って途切れずに出勤した日数です。
	Streak int
	// AverageCheckIn は平均出勤時刻 (HH:MM) です。出勤記録がなければ空文字です。
	AverageCheckIn string
}

// Summarize は records を集計します。
func Summarize(records []*Record) Stats {
	var stats Stats
	var (
		minutesSum float64
		checkIns   int
	)
	dated := make([]*Record, 0, len(records))
	for _, rec := range records {
		if rec == nil {
			continue
		}
		stats.TotalDays++
		switch rec.Status {
		case StatusPresent:
			stats.TotalPresent++
		case StatusLate:
			stats.TotalLate++
		case StatusAbsent:
			stats.TotalAbsent++
		}
		if rec.CheckInAt != nil {
			minutesSum += float64(rec.CheckInAt.Hour()*60 + rec.CheckInAt.Minute())
			checkIns++
		}
		dated = append(dated, rec)
	}

	if checkIns > 0 {
		avg := int(math.Round(minutesSum / float64(checkIns)))
		stats.AverageCheckIn = fmt.Sprintf("%02d:%02d", avg/60, avg%60)
	}
	stats.Streak = streak(dated)
	return stats
}

func streak(records []*Record) int {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Date > records[j].Date
	})

	count := 0
	var prev time.Time
	for _, rec := range records {
		if rec.Status != StatusPresent && rec.Status != StatusLate {
			break
		}
		day, err := time.Parse(DateLayout, rec.Date)
		if err != nil {
			break
		}
		if !prev.IsZero() {
			if day.Equal(prev) {
				continue
			}
			if !day.Equal(prev.AddDate(0, 0, -1)) {
				break
			}
		}
		count++
		prev = day
	}
	return count
}
