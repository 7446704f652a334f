package sync

import (
	"time"

	"github.com/google/uuid"

	"github.com/pedalexsilva/Prime-Human-Performance-Hub-v2-sub001/internal/domain"
	"github.com/pedalexsilva/Prime-Human-Performance-Hub-v2-sub001/internal/whoop"
)

// metricDate truncates a timestamp to its UTC day. Sessions crossing
// midnight key on the day they ended for sleep and the day they started for
// workouts and recoveries.
func metricDate(ts time.Time) time.Time {
	return ts.UTC().Truncate(24 * time.Hour)
}

func minutesFromMilli(milli int) int {
	return milli / int(time.Minute/time.Millisecond)
}

// kilojouleToKcal converts provider energy units to calories.
func kilojouleToKcal(kj float64) float64 {
	return kj / 4.184
}

func normalizeRecovery(userID string, rec whoop.RecoveryRecord, now time.Time) domain.RecoveryMetrics {
	out := domain.RecoveryMetrics{
		ID:             uuid.NewString(),
		UserID:         userID,
		SourcePlatform: domain.PlatformWhoop,
		MetricDate:     metricDate(rec.Recovery.CreatedAt),
		Raw:            rec.Raw,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if score := rec.Recovery.Score; score != nil {
		out.RecoveryScore = score.RecoveryScore
		out.HRVMilli = score.HRVRmssdMilli
		out.RestingHeartRate = score.RestingHeartRate
		out.SpO2Percentage = score.SpO2Percentage
		out.SkinTempCelsius = score.SkinTempCelsius
	}
	return out
}

// normalizeSleeps converts a user's sleep sessions, collapsing those that
// share a day onto the storage key: the main (non-nap) session always wins
// over a nap, so an afternoon nap never replaces the night's sleep. Between
// sessions of the same kind the later one wins.
func normalizeSleeps(userID string, recs []whoop.SleepRecord, now time.Time) []domain.SleepMetrics {
	byDay := make(map[time.Time]int)
	var out []domain.SleepMetrics

	for _, rec := range recs {
		next := normalizeSleep(userID, rec, now)
		idx, seen := byDay[next.MetricDate]
		if !seen {
			byDay[next.MetricDate] = len(out)
			out = append(out, next)
			continue
		}
		if preferSleep(next, out[idx]) {
			out[idx] = next
		}
	}
	return out
}

func preferSleep(next, current domain.SleepMetrics) bool {
	if next.Nap != current.Nap {
		return !next.Nap
	}
	return next.End.After(current.End)
}

func normalizeSleep(userID string, rec whoop.SleepRecord, now time.Time) domain.SleepMetrics {
	out := domain.SleepMetrics{
		ID:             uuid.NewString(),
		UserID:         userID,
		SourcePlatform: domain.PlatformWhoop,
		MetricDate:     metricDate(rec.Sleep.End),
		Start:          rec.Sleep.Start.UTC(),
		End:            rec.Sleep.End.UTC(),
		Nap:            rec.Sleep.Nap,
		Raw:            rec.Raw,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if score := rec.Sleep.Score; score != nil {
		stages := score.StageSummary
		out.LightSleepMinutes = minutesFromMilli(stages.TotalLightSleepTimeMilli)
		out.DeepSleepMinutes = minutesFromMilli(stages.TotalSlowWaveSleepTimeMilli)
		out.RemSleepMinutes = minutesFromMilli(stages.TotalREMSleepTimeMilli)
		out.AwakeMinutes = minutesFromMilli(stages.TotalAwakeTimeMilli)
		out.DisturbanceCount = stages.DisturbanceCount
		out.EfficiencyPercentage = score.SleepEfficiencyPercentage
		out.PerformancePercentage = score.SleepPerformancePercentage
		out.ConsistencyPercentage = score.SleepConsistencyPercentage
		out.RespiratoryRate = score.RespiratoryRate
	}
	return out
}

func normalizeWorkout(userID string, rec whoop.WorkoutRecord, now time.Time) domain.WorkoutMetrics {
	out := domain.WorkoutMetrics{
		ID:              uuid.NewString(),
		UserID:          userID,
		SourcePlatform:  domain.PlatformWhoop,
		MetricDate:      metricDate(rec.Workout.Start),
		Start:           rec.Workout.Start.UTC(),
		End:             rec.Workout.End.UTC(),
		DurationMinutes: int(rec.Workout.End.Sub(rec.Workout.Start).Minutes()),
		Sport:           rec.Workout.SportName,
		Raw:             rec.Raw,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if score := rec.Workout.Score; score != nil {
		out.Strain = score.Strain
		out.AverageHeartRate = score.AverageHeartRate
		out.MaxHeartRate = score.MaxHeartRate
		out.Calories = kilojouleToKcal(score.Kilojoule)
		if score.DistanceMeter != nil {
			out.DistanceMeter = *score.DistanceMeter
		}
		if score.AltitudeGainMeter != nil {
			out.AltitudeGainMeter = *score.AltitudeGainMeter
		}
		zones := score.ZoneDurations
		out.ZoneDurations = domain.ZoneDurations{
			Zone0Minutes: minutesFromMilli(zones.ZoneZeroMilli),
			Zone1Minutes: minutesFromMilli(zones.ZoneOneMilli),
			Zone2Minutes: minutesFromMilli(zones.ZoneTwoMilli),
			Zone3Minutes: minutesFromMilli(zones.ZoneThreeMilli),
			Zone4Minutes: minutesFromMilli(zones.ZoneFourMilli),
			Zone5Minutes: minutesFromMilli(zones.ZoneFiveMilli),
		}
	}
	return out
}
