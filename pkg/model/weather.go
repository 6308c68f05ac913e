package model

import "time"

// Coordinates is a resolved device position in decimal degrees.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// WeatherSnapshot is a point-in-time weather reading. It is fetched once per
// session and only read afterwards.
type WeatherSnapshot struct {
	PlaceName   string  `json:"place_name"`
	Country     string  `json:"country,omitempty"`
	Temperature float64 `json:"temperature"`
	FeelsLike   float64 `json:"feels_like"`
	Humidity    int     `json:"humidity"`
	Pressure    int     `json:"pressure"`
	WindSpeed   float64 `json:"wind_speed"`

	// Visibility is in meters; nil when the provider did not report it.
	Visibility *int `json:"visibility,omitempty"`

	Description string `json:"description"`
	Category    string `json:"category"`

	Sunrise time.Time `json:"sunrise"`
	Sunset  time.Time `json:"sunset"`

	UVIndex *float64 `json:"uv_index,omitempty"`

	ObservedAt time.Time `json:"observed_at"`
}
