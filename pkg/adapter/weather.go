package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kaze/pkg/model"
)

const openWeatherBaseURL = "https://api.openweathermap.org/data/2.5"

// Weather provides current conditions for a position
type Weather interface {
	CurrentConditions(ctx context.Context, lat, lon float64) (*model.WeatherSnapshot, error)
}

type openWeather struct {
	apiKey     string
	baseURL    string
	language   string
	httpClient *http.Client
	now        func() time.Time
}

type OpenWeatherOption func(*openWeather)

func WithOpenWeatherBaseURL(baseURL string) OpenWeatherOption {
	return func(w *openWeather) {
		w.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithWeatherLanguage sets the language of condition descriptions. A full
// language tag such as "ja-JP" is reduced to its primary subtag.
func WithWeatherLanguage(tag string) OpenWeatherOption {
	return func(w *openWeather) {
		w.language = primaryLanguage(tag)
	}
}

func WithWeatherHTTPClient(client *http.Client) OpenWeatherOption {
	return func(w *openWeather) {
		w.httpClient = client
	}
}

// NewOpenWeather creates a client of the OpenWeatherMap current weather API
func NewOpenWeather(apiKey string, opts ...OpenWeatherOption) Weather {
	w := &openWeather{
		apiKey:   apiKey,
		baseURL:  openWeatherBaseURL,
		language: "en",
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

type openWeatherResponse struct {
	Name string `json:"name"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int     `json:"humidity"`
		Pressure  int     `json:"pressure"`
	} `json:"main"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Visibility *int `json:"visibility"`
	Sys        struct {
		Country string `json:"country"`
		Sunrise int64  `json:"sunrise"`
		Sunset  int64  `json:"sunset"`
	} `json:"sys"`
	UVI *float64 `json:"uvi"`
	Dt  int64    `json:"dt"`
}

func (w *openWeather) CurrentConditions(ctx context.Context, lat, lon float64) (*model.WeatherSnapshot, error) {
	query := url.Values{}
	query.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	query.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	query.Set("appid", w.apiKey)
	query.Set("units", "metric")
	query.Set("lang", w.language)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+"/weather?"+query.Encode(), nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create request")
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, goerr.Wrap(&model.WeatherError{Reason: model.WeatherNetwork}, "failed to send weather request",
			goerr.V("cause", err.Error()))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, goerr.Wrap(&model.WeatherError{Reason: model.WeatherUnauthorized}, "weather API rejected the API key")
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(resp.Body)
		return nil, goerr.Wrap(&model.WeatherError{Reason: model.WeatherUnknown}, "weather API returned error",
			goerr.V("status", resp.StatusCode),
			goerr.V("body", string(body)))
	}

	var data openWeatherResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, goerr.Wrap(&model.WeatherError{Reason: model.WeatherUnknown}, "failed to decode weather response",
			goerr.V("cause", err.Error()))
	}

	return data.toSnapshot(w.now()), nil
}

func (r *openWeatherResponse) toSnapshot(fetchedAt time.Time) *model.WeatherSnapshot {
	snapshot := &model.WeatherSnapshot{
		PlaceName:   r.Name,
		Country:     r.Sys.Country,
		Temperature: r.Main.Temp,
		FeelsLike:   r.Main.FeelsLike,
		Humidity:    r.Main.Humidity,
		Pressure:    r.Main.Pressure,
		WindSpeed:   r.Wind.Speed,
		Visibility:  r.Visibility,
		UVIndex:     r.UVI,
		ObservedAt:  fetchedAt,
	}
	if len(r.Weather) > 0 {
		snapshot.Description = r.Weather[0].Description
		snapshot.Category = r.Weather[0].Main
	}
	if r.Sys.Sunrise > 0 {
		snapshot.Sunrise = time.Unix(r.Sys.Sunrise, 0)
	}
	if r.Sys.Sunset > 0 {
		snapshot.Sunset = time.Unix(r.Sys.Sunset, 0)
	}
	if r.Dt > 0 {
		snapshot.ObservedAt = time.Unix(r.Dt, 0)
	}
	return snapshot
}

func primaryLanguage(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return "en"
	}
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		tag = tag[:i]
	}
	return strings.ToLower(tag)
}

// isTimeout reports whether err is a deadline or network timeout
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
