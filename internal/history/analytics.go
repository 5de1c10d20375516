package history

import (
	"fmt"
	"time"

	"fleettrack/internal/domain"
	"fleettrack/internal/geo"
)

// AnalyticsConfig carries the stop-detection thresholds and the fleet
// timezone used for calendar-day boundaries.
type AnalyticsConfig struct {
	StopSpeedThresholdKmh float64
	StopMinDwell          time.Duration
	Timezone              string
}

type Service struct {
	log *Log
	cfg AnalyticsConfig
	loc *time.Location
}

func NewService(log *Log, cfg AnalyticsConfig) (*Service, error) {
	if cfg.StopSpeedThresholdKmh <= 0 {
		cfg.StopSpeedThresholdKmh = 2.0
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q", domain.ErrInvalidInput, cfg.Timezone)
	}
	return &Service{log: log, cfg: cfg, loc: loc}, nil
}

func (s *Service) Log() *Log { return s.log }

// Track returns the raw fixes in range.
func (s *Service) Track(trackerID string, start, end time.Time) []domain.PositionSample {
	return s.log.Range(trackerID, start, end)
}

// Simplify fetches the fixes in range and reduces them with
// Douglas-Peucker at the given tolerance.
func (s *Service) Simplify(trackerID string, start, end time.Time, epsilonMeters float64) ([]geo.TimedPoint, error) {
	if epsilonMeters < 0 {
		return nil, fmt.Errorf("%w: negative epsilon", domain.ErrInvalidInput)
	}
	samples := s.log.Range(trackerID, start, end)
	points := make([]geo.TimedPoint, len(samples))
	for i, sm := range samples {
		points[i] = geo.TimedPoint{
			Point: geo.Point{Lat: sm.Lat, Lng: sm.Lng},
			Time:  sm.Timestamp,
		}
	}
	return geo.Simplify(points, epsilonMeters), nil
}

// StopEpisode is a maximal interval where the tracker dwelled below the
// stop speed threshold for at least the minimum dwell duration.
type StopEpisode struct {
	Start    time.Time     `json:"start"`
	Duration time.Duration `json:"duration"`
	Lat      float64       `json:"lat"`
	Lng      float64       `json:"lng"`
}

type TravelStats struct {
	TrackerID     string        `json:"tracker_id"`
	Start         time.Time     `json:"start"`
	End           time.Time     `json:"end"`
	SampleCount   int           `json:"sample_count"`
	TotalKm       float64       `json:"total_km"`
	MovingTime    time.Duration `json:"moving_time"`
	StoppedTime   time.Duration `json:"stopped_time"`
	MaxSpeedKmh   float64       `json:"max_speed_kmh"`
	AvgSpeedKmh   float64       `json:"avg_speed_kmh"`
	Stops         []StopEpisode `json:"stops"`
}

// TravelStats derives distance, moving/stopped split and stop episodes
// over a time range. An interval between consecutive fixes is classified
// by the speed at its starting fix; dips below the threshold shorter than
// the minimum dwell count as moving, which suppresses GPS jitter around
// zero speed.
func (s *Service) TravelStats(trackerID string, start, end time.Time) TravelStats {
	samples := s.log.Range(trackerID, start, end)
	stats := TravelStats{TrackerID: trackerID, Start: start, End: end, SampleCount: len(samples)}
	if len(samples) == 0 {
		return stats
	}

	var speedSum float64
	for _, sm := range samples {
		speedSum += sm.SpeedKmh
		if sm.SpeedKmh > stats.MaxSpeedKmh {
			stats.MaxSpeedKmh = sm.SpeedKmh
		}
	}
	stats.AvgSpeedKmh = speedSum / float64(len(samples))

	for i := 1; i < len(samples); i++ {
		stats.TotalKm += geo.Haversine(
			geo.Point{Lat: samples[i-1].Lat, Lng: samples[i-1].Lng},
			geo.Point{Lat: samples[i].Lat, Lng: samples[i].Lng},
		) / 1000
	}

	totalSpan := samples[len(samples)-1].Timestamp.Sub(samples[0].Timestamp)

	// Collect maximal runs of below-threshold fixes.
	runStart := -1
	flush := func(endIdx int) {
		if runStart < 0 {
			return
		}
		first := samples[runStart]
		var until time.Time
		if endIdx < len(samples) {
			until = samples[endIdx].Timestamp
		} else {
			until = samples[len(samples)-1].Timestamp
		}
		dur := until.Sub(first.Timestamp)
		if dur >= s.cfg.StopMinDwell {
			stats.Stops = append(stats.Stops, StopEpisode{
				Start:    first.Timestamp,
				Duration: dur,
				Lat:      first.Lat,
				Lng:      first.Lng,
			})
			stats.StoppedTime += dur
		}
		runStart = -1
	}

	for i, sm := range samples {
		if sm.SpeedKmh < s.cfg.StopSpeedThresholdKmh {
			if runStart < 0 {
				runStart = i
			}
		} else {
			flush(i)
		}
	}
	flush(len(samples))

	stats.MovingTime = totalSpan - stats.StoppedTime
	return stats
}

// DayMileage is the distance covered within one calendar day of the fleet
// timezone.
type DayMileage struct {
	Date string  `json:"date"` // YYYY-MM-DD in the fleet timezone
	Km   float64 `json:"km"`
}

// DailyMileage aggregates distance per calendar day. Each leg between
// consecutive fixes is attributed to the day of its starting fix.
func (s *Service) DailyMileage(trackerID string, start, end time.Time) []DayMileage {
	samples := s.log.Range(trackerID, start, end)
	if len(samples) < 2 {
		return nil
	}

	perDay := make(map[string]float64)
	var order []string
	for i := 1; i < len(samples); i++ {
		day := samples[i-1].Timestamp.In(s.loc).Format("2006-01-02")
		if _, seen := perDay[day]; !seen {
			order = append(order, day)
		}
		perDay[day] += geo.Haversine(
			geo.Point{Lat: samples[i-1].Lat, Lng: samples[i-1].Lng},
			geo.Point{Lat: samples[i].Lat, Lng: samples[i].Lng},
		) / 1000
	}

	out := make([]DayMileage, 0, len(order))
	for _, day := range order {
		out = append(out, DayMileage{Date: day, Km: perDay[day]})
	}
	return out
}
