package types

// ------------------------
// Sensor tag readings
// ------------------------

type TemperatureValue struct {
	Celsius float32 `json:"celsius"`
	TSms    int64   `json:"ts_ms"`
}

type BarometerValue struct {
	Pascal float32 `json:"pascal"`
	Meter  float32 `json:"meter"`
	TSms   int64   `json:"ts_ms"`
}

type HumidityValue struct {
	Percent float32 `json:"percent"`
	TSms    int64   `json:"ts_ms"`
}
