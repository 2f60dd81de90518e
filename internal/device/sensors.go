package device

import (
	"math"
	"math/rand"

	"twinsim/internal/config"
	"twinsim/internal/telemetry"
)

// SensorBank generates temperature, humidity, and light readings with
// configurable noise, anomaly injection, and a day/night light cycle.
type SensorBank struct {
	cfg config.Sensors

	totalReadings  int
	totalAnomalies int
}

func NewSensorBank(cfg config.Sensors) *SensorBank {
	return &SensorBank{cfg: cfg}
}

// Generate produces one reading for the given tick. All randomness comes
// from the injected rng to keep runs reproducible.
func (s *SensorBank) Generate(rng *rand.Rand, tick int, timeStepS float64) telemetry.SensorReading {
	s.totalReadings++
	reading := telemetry.SensorReading{}

	// Temperature: daily sinusoid plus noise, occasional spike.
	timeHours := float64(tick) * timeStepS / 3600.0
	drift := 2.0 * math.Sin(2*math.Pi*timeHours/24)
	temp := s.cfg.Temperature.BaseValue + drift
	if rng.Float64() < s.cfg.Temperature.AnomalyProb {
		temp += spike(rng, s.cfg.Temperature.AnomalySpikeRange)
		reading.Anomalies = append(reading.Anomalies, telemetry.FieldTemperature)
		s.totalAnomalies++
	} else {
		temp += rng.NormFloat64() * s.cfg.Temperature.NoiseStdDev
	}
	reading.Temperature = round2(temp)

	// Humidity: clamped to [0,100].
	hum := s.cfg.Humidity.BaseValue
	if rng.Float64() < s.cfg.Humidity.AnomalyProb {
		hum += spike(rng, s.cfg.Humidity.AnomalySpikeRange)
		reading.Anomalies = append(reading.Anomalies, telemetry.FieldHumidity)
		s.totalAnomalies++
	} else {
		hum += rng.NormFloat64() * s.cfg.Humidity.NoiseStdDev
	}
	reading.Humidity = round2(math.Max(0, math.Min(100, hum)))

	// Light: sinusoidal day/night cycle, phase shifted so t=0 is sunrise.
	cycle := s.cfg.Light.CyclePeriodHours
	phase := math.Mod(timeHours, cycle) / cycle * 2 * math.Pi
	normalized := (math.Sin(phase-math.Pi/2) + 1) / 2
	light := s.cfg.Light.NightValue + (s.cfg.Light.DayValue-s.cfg.Light.NightValue)*normalized
	light += rng.NormFloat64() * s.cfg.Light.NoiseStdDev
	reading.Light = math.Round(math.Max(0, light)*10) / 10

	return reading
}

func (s *SensorBank) TotalReadings() int  { return s.totalReadings }
func (s *SensorBank) TotalAnomalies() int { return s.totalAnomalies }

func spike(rng *rand.Rand, r [2]float64) float64 {
	v := r[0] + rng.Float64()*(r[1]-r[0])
	if rng.Float64() < 0.5 {
		v = -v
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
