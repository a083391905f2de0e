package converter

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

var rawHeader = []string{
	"timestamp", "position_lat", "position_long", "distance_m",
	"speed_mps", "altitude_m", "heart_rate", "cadence",
}

var transformedHeader = []string{
	"timestamp", "position_lat_deg", "position_long_deg", "distance_m",
	"pace_min_per_mile", "altitude_m", "heart_rate", "cadence_spm",
}

// writeCSV writes samples to path via temp file + rename and returns the row
// count. The rename keeps a partially written artifact from ever appearing
// under its final name.
func (c *FIT) writeCSV(path string, samples []sample, transform bool) (int, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create outbox: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".fitconv-*")
	if err != nil {
		return 0, fmt.Errorf("create temp artifact: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	w := csv.NewWriter(tmp)

	header := rawHeader
	if transform {
		header = transformedHeader
	}
	if err := w.Write(header); err != nil {
		return 0, fmt.Errorf("write artifact: %w", err)
	}

	rows := 0
	for i := range samples {
		if err := w.Write(row(&samples[i], transform)); err != nil {
			return 0, fmt.Errorf("write artifact: %w", err)
		}
		rows++
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return 0, fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close artifact: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("publish artifact: %w", err)
	}
	return rows, nil
}

// row renders one sample, applying readability transforms when enabled.
func row(s *sample, transform bool) []string {
	cols := make([]string, 8)

	cols[0] = s.Time().Format(time.RFC3339)

	if s.Lat != nil {
		if transform {
			cols[1] = formatFloat(semicirclesToDegrees(*s.Lat))
		} else {
			cols[1] = strconv.FormatInt(int64(*s.Lat), 10)
		}
	}
	if s.Long != nil {
		if transform {
			cols[2] = formatFloat(semicirclesToDegrees(*s.Long))
		} else {
			cols[2] = strconv.FormatInt(int64(*s.Long), 10)
		}
	}

	if s.Distance != nil {
		cols[3] = formatFloat(float64(*s.Distance) / 100.0) // cm -> m
	}

	if s.Speed != nil {
		mps := float64(*s.Speed) / 1000.0 // mm/s -> m/s
		if transform {
			cols[4] = paceMMSS(mps)
		} else {
			cols[4] = formatFloat(mps)
		}
	}

	if s.Altitude != nil {
		cols[5] = formatFloat(float64(*s.Altitude)/5.0 - 500.0)
	}

	if s.HeartRate != nil {
		cols[6] = strconv.Itoa(int(*s.HeartRate))
	}

	if s.Cadence != nil {
		if transform {
			cols[7] = strconv.Itoa(cadenceSPM(*s.Cadence))
		} else {
			cols[7] = strconv.Itoa(int(*s.Cadence))
		}
	}

	return cols
}

// semicirclesToDegrees converts FIT position units to degrees.
func semicirclesToDegrees(v int32) float64 {
	return float64(v) * (180.0 / 2147483648.0)
}

// cadenceSPM doubles per-leg run cadence to steps per minute.
func cadenceSPM(c uint8) int {
	return int(c) * 2
}

// paceMMSS renders m/s as a "mm:ss" per-mile pace. Empty for zero or
// negative speed.
func paceMMSS(mps float64) string {
	if mps <= 0 {
		return ""
	}
	secPerMile := 1609.344 / mps
	m := int(secPerMile) / 60
	s := int(secPerMile+0.5) - m*60
	if s == 60 {
		m++
		s = 0
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// formatFloat trims trailing zeros without losing precision.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
