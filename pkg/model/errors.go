package model

import (
	"errors"

	"github.com/m-mizutani/goerr/v2"
)

var (
	ErrSpeechPermissionDenied = goerr.New("microphone permission denied")
	ErrNoSpeech               = goerr.New("no speech detected")
	ErrSpeechUnsupported      = goerr.New("speech capability is not supported")
)

type LocationReason string

const (
	LocationPermissionDenied LocationReason = "permission_denied"
	LocationUnavailable      LocationReason = "unavailable"
	LocationTimeout          LocationReason = "timeout"
	LocationUnsupported      LocationReason = "unsupported"
)

// LocationError is a classified failure of the location provider
type LocationError struct {
	Reason LocationReason
}

func (e *LocationError) Error() string {
	switch e.Reason {
	case LocationPermissionDenied:
		return "Location access is not permitted."
	case LocationUnavailable:
		return "Location information is unavailable."
	case LocationTimeout:
		return "Location request timed out."
	case LocationUnsupported:
		return "Location is not supported in this environment."
	default:
		return "Failed to get location information."
	}
}

type WeatherReason string

const (
	WeatherNetwork      WeatherReason = "network"
	WeatherUnauthorized WeatherReason = "unauthorized"
	WeatherUnknown      WeatherReason = "unknown"
)

// WeatherError is a failure of the weather provider. Its text is the same for
// every reason; Reason is kept for logging.
type WeatherError struct {
	Reason WeatherReason
}

func (e *WeatherError) Error() string {
	return "Failed to fetch weather information."
}

// UserMessage returns the text shown to the user for a provider failure. For
// classified failures it is the fixed message of the class, otherwise the
// innermost error text.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var locErr *LocationError
	if errors.As(err, &locErr) {
		return locErr.Error()
	}
	var wErr *WeatherError
	if errors.As(err, &wErr) {
		return wErr.Error()
	}

	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}
