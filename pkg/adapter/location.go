package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kaze/pkg/model"
)

const (
	ipLocationURL = "http://ip-api.com/json/?fields=status,message,lat,lon"

	defaultLocateTimeout = 10 * time.Second
	defaultLocateMaxAge  = 5 * time.Minute
)

// Locator resolves the device position. Failures are *model.LocationError.
type Locator interface {
	Locate(ctx context.Context) (*model.Coordinates, error)
}

type fixedLocator struct {
	coords model.Coordinates
}

// NewFixedLocator always resolves to the given coordinates
func NewFixedLocator(lat, lon float64) Locator {
	return &fixedLocator{coords: model.Coordinates{Latitude: lat, Longitude: lon}}
}

func (x *fixedLocator) Locate(ctx context.Context) (*model.Coordinates, error) {
	c := x.coords
	return &c, nil
}

type unsupportedLocator struct{}

// NewUnsupportedLocator is used when no position source is configured
func NewUnsupportedLocator() Locator {
	return unsupportedLocator{}
}

func (unsupportedLocator) Locate(ctx context.Context) (*model.Coordinates, error) {
	return nil, goerr.Wrap(&model.LocationError{Reason: model.LocationUnsupported}, "no location source configured")
}

type ipLocator struct {
	endpoint   string
	httpClient *http.Client
	timeout    time.Duration
	maxAge     time.Duration
	now        func() time.Time

	mu       sync.Mutex
	cached   *model.Coordinates
	cachedAt time.Time
}

type IPLocatorOption func(*ipLocator)

func WithIPLocationEndpoint(endpoint string) IPLocatorOption {
	return func(x *ipLocator) {
		x.endpoint = endpoint
	}
}

// WithLocateTimeout bounds a single lookup
func WithLocateTimeout(d time.Duration) IPLocatorOption {
	return func(x *ipLocator) {
		x.timeout = d
	}
}

// WithLocateMaxAge sets how long a resolved position is reused
func WithLocateMaxAge(d time.Duration) IPLocatorOption {
	return func(x *ipLocator) {
		x.maxAge = d
	}
}

func withLocatorClock(now func() time.Time) IPLocatorOption {
	return func(x *ipLocator) {
		x.now = now
	}
}

// NewIPLocator resolves an approximate position from the public IP address
func NewIPLocator(opts ...IPLocatorOption) Locator {
	x := &ipLocator{
		endpoint:   ipLocationURL,
		httpClient: &http.Client{},
		timeout:    defaultLocateTimeout,
		maxAge:     defaultLocateMaxAge,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

type ipLocationResponse struct {
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

func (x *ipLocator) Locate(ctx context.Context) (*model.Coordinates, error) {
	x.mu.Lock()
	if x.cached != nil && x.now().Sub(x.cachedAt) < x.maxAge {
		c := *x.cached
		x.mu.Unlock()
		return &c, nil
	}
	x.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, x.endpoint, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create request")
	}

	resp, err := x.httpClient.Do(req)
	if err != nil {
		reason := model.LocationUnavailable
		if isTimeout(err) {
			reason = model.LocationTimeout
		}
		return nil, goerr.Wrap(&model.LocationError{Reason: reason}, "failed to query location",
			goerr.V("cause", err.Error()))
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusForbidden, http.StatusUnauthorized:
		return nil, goerr.Wrap(&model.LocationError{Reason: model.LocationPermissionDenied}, "location service refused the request",
			goerr.V("status", resp.StatusCode))
	default:
		return nil, goerr.Wrap(&model.LocationError{Reason: model.LocationUnavailable}, "location service returned error",
			goerr.V("status", resp.StatusCode))
	}

	var data ipLocationResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		reason := model.LocationUnavailable
		if isTimeout(err) {
			reason = model.LocationTimeout
		}
		return nil, goerr.Wrap(&model.LocationError{Reason: reason}, "failed to decode location response",
			goerr.V("cause", err.Error()))
	}
	if !strings.EqualFold(data.Status, "success") {
		return nil, goerr.Wrap(&model.LocationError{Reason: model.LocationUnavailable}, "location lookup failed",
			goerr.V("message", data.Message))
	}

	coords := &model.Coordinates{Latitude: data.Lat, Longitude: data.Lon}

	x.mu.Lock()
	x.cached = coords
	x.cachedAt = x.now()
	x.mu.Unlock()

	c := *coords
	return &c, nil
}
