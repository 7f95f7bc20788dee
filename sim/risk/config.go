package risk

import "fmt"

// Weights scale each normalized component before summing.
type Weights struct {
	Proximity          float64 `yaml:"proximity" mapstructure:"proximity"`
	RelativeSpeed      float64 `yaml:"relative_speed" mapstructure:"relative_speed"`
	BLE                float64 `yaml:"ble" mapstructure:"ble"`
	SensorDisagreement float64 `yaml:"sensor_disagreement" mapstructure:"sensor_disagreement"`
}

// Config holds every threshold used by Assess.
type Config struct {
	ProximityWarning  float64 `yaml:"proximity_warning_m" mapstructure:"proximity_warning_m"`   // m, proximity starts to count
	ProximityCritical float64 `yaml:"proximity_critical_m" mapstructure:"proximity_critical_m"` // m, proximity saturates
	SpeedWarning      float64 `yaml:"speed_warning_ms" mapstructure:"speed_warning_ms"`         // m/s closing speed before it counts
	SpeedSaturation   float64 `yaml:"speed_saturation_ms" mapstructure:"speed_saturation_ms"`   // m/s closing speed mapped to 1

	BLEAlertRSSI     float64 `yaml:"ble_alert_rssi" mapstructure:"ble_alert_rssi"`         // dBm, signals above this count
	BLEReferenceRSSI float64 `yaml:"ble_reference_rssi" mapstructure:"ble_reference_rssi"` // dBm mapped to 0
	BLESpan          float64 `yaml:"ble_span_db" mapstructure:"ble_span_db"`               // dB from reference to 1

	DisagreementRSSI  float64 `yaml:"disagreement_rssi" mapstructure:"disagreement_rssi"`   // dBm, BLE "close" cut-off
	DisagreementLevel float64 `yaml:"disagreement_level" mapstructure:"disagreement_level"` // component value on conflict

	SlowThreshold float64 `yaml:"slow_threshold" mapstructure:"slow_threshold"`
	StopThreshold float64 `yaml:"stop_threshold" mapstructure:"stop_threshold"`

	Weights Weights `yaml:"weights" mapstructure:"weights"`

	// ZoneFactors appends informational zone reason codes. They never change the score.
	ZoneFactors       bool    `yaml:"zone_factors" mapstructure:"zone_factors"`
	CongestionWarning float64 `yaml:"congestion_warning" mapstructure:"congestion_warning"`
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		ProximityWarning:  3.0,
		ProximityCritical: 1.5,
		SpeedWarning:      1.5,
		SpeedSaturation:   3.0,
		BLEAlertRSSI:      -60,
		BLEReferenceRSSI:  -40,
		BLESpan:           20,
		DisagreementRSSI:  -65,
		DisagreementLevel: 0.5,
		SlowThreshold:     0.4,
		StopThreshold:     0.7,
		Weights: Weights{
			Proximity:          0.45,
			RelativeSpeed:      0.30,
			BLE:                0.15,
			SensorDisagreement: 0.10,
		},
		CongestionWarning: 0.6,
	}
}

// Validate checks the thresholds are ordered and the spans non-degenerate.
func (c Config) Validate() error {
	if c.ProximityCritical <= 0 || c.ProximityWarning <= c.ProximityCritical {
		return fmt.Errorf("proximity thresholds must satisfy 0 < critical < warning, got critical=%g warning=%g",
			c.ProximityCritical, c.ProximityWarning)
	}
	if c.SpeedWarning < 0 || c.SpeedSaturation <= 0 {
		return fmt.Errorf("speed thresholds must be positive, got warning=%g saturation=%g", c.SpeedWarning, c.SpeedSaturation)
	}
	if c.BLESpan <= 0 {
		return fmt.Errorf("BLE span must be positive, got %g", c.BLESpan)
	}
	if c.SlowThreshold <= 0 || c.StopThreshold < c.SlowThreshold || c.StopThreshold > 1 {
		return fmt.Errorf("action thresholds must satisfy 0 < slow <= stop <= 1, got slow=%g stop=%g",
			c.SlowThreshold, c.StopThreshold)
	}
	w := c.Weights
	for name, v := range map[string]float64{
		"proximity":           w.Proximity,
		"relative_speed":      w.RelativeSpeed,
		"ble":                 w.BLE,
		"sensor_disagreement": w.SensorDisagreement,
	} {
		if v < 0 {
			return fmt.Errorf("weight %s must be non-negative, got %g", name, v)
		}
	}
	return nil
}
