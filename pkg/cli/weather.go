package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kaze/pkg/model"
	"github.com/urfave/cli/v3"
)

func weatherCommand() *cli.Command {
	var (
		cfg    config
		asJSON bool
	)

	var flags []cli.Flag
	flags = append(flags, weatherFlags(&cfg)...)
	flags = append(flags, locationFlags(&cfg)...)
	flags = append(flags, languageFlag(&cfg))
	flags = append(flags, loggingFlags(&cfg)...)
	flags = append(flags, &cli.BoolFlag{
		Name:        "json",
		Usage:       "Print the snapshot as JSON",
		Destination: &asJSON,
	})

	return &cli.Command{
		Name:  "weather",
		Usage: "Show current weather at your location",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := cfg.newLogger()

			snapshot, err := cfg.fetchWeather(ctx)
			if err != nil {
				return err
			}
			logger.Debug("weather fetched", "place", snapshot.PlaceName)

			if asJSON {
				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")
				if err := encoder.Encode(snapshot); err != nil {
					return goerr.Wrap(err, "failed to encode weather")
				}
				return nil
			}

			printWeather(os.Stdout, snapshot)
			return nil
		},
	}
}

// fetchWeather resolves the position and reads current conditions there
func (cfg *config) fetchWeather(ctx context.Context) (*model.WeatherSnapshot, error) {
	weather, err := cfg.newWeather()
	if err != nil {
		return nil, err
	}
	locator, err := cfg.newLocator()
	if err != nil {
		return nil, err
	}

	coords, err := locator.Locate(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get location")
	}

	snapshot, err := weather.CurrentConditions(ctx, coords.Latitude, coords.Longitude)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get weather",
			goerr.V("latitude", coords.Latitude),
			goerr.V("longitude", coords.Longitude))
	}
	return snapshot, nil
}

func printWeather(w io.Writer, s *model.WeatherSnapshot) {
	place := s.PlaceName
	if s.Country != "" {
		place += ", " + s.Country
	}

	fmt.Fprintf(w, "%s\n", place)
	fmt.Fprintf(w, "  %s (%s)\n", s.Description, s.Category)
	fmt.Fprintf(w, "  Temperature: %.1f°C (feels like %.1f°C)\n", s.Temperature, s.FeelsLike)
	fmt.Fprintf(w, "  Humidity:    %d%%\n", s.Humidity)
	fmt.Fprintf(w, "  Pressure:    %d hPa\n", s.Pressure)
	fmt.Fprintf(w, "  Wind:        %.1f m/s\n", s.WindSpeed)
	if s.Visibility != nil {
		fmt.Fprintf(w, "  Visibility:  %.1f km\n", float64(*s.Visibility)/1000)
	}
	if s.UVIndex != nil {
		fmt.Fprintf(w, "  UV index:    %.1f\n", *s.UVIndex)
	}
	if !s.Sunrise.IsZero() && !s.Sunset.IsZero() {
		fmt.Fprintf(w, "  Sun:         %s - %s\n",
			s.Sunrise.Local().Format(time.Kitchen),
			s.Sunset.Local().Format(time.Kitchen))
	}
}
