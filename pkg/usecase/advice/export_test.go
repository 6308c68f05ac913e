package advice

import (
	"github.com/m-mizutani/kaze/pkg/model"
	"google.golang.org/genai"
)

// SelectModelForTest exposes selectModel to tests
func SelectModelForTest(models []*genai.Model, preference []string) string {
	return selectModel(models, preference)
}

// FormatWeatherForTest exposes formatWeather to tests
func (g *Generator) FormatWeatherForTest(s *model.WeatherSnapshot) string {
	return g.formatWeather(s)
}
