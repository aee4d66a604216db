package weather

import (
	"context"
	"math/rand/v2"

	"go.uber.org/zap"

	"github.com/nimbuslabs/nimbus/internal/tools"
)

const (
	defaultForecastDays = 3
	maxForecastDays     = 7
)

var (
	weatherConditions  = []string{"Sunny", "Cloudy", "Rainy", "Partly Cloudy"}
	forecastConditions = []string{"Sunny", "Cloudy", "Rainy", "Stormy"}
)

// Provider registers the weather tools.
type Provider struct {
	logger *zap.Logger
}

// NewProvider creates a weather provider.
func NewProvider(logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{logger: logger}
}

// Register adds get_weather and get_forecast to the registry.
func (p *Provider) Register(registry *tools.Registry) error {
	if err := registry.Register(tools.Descriptor{
		Name:        "get_weather",
		Description: "Get current weather for a specified location",
		InputSchema: tools.Schema{Fields: []tools.Field{
			{Name: "location", Type: "string", Description: "City name to get weather for", Required: true},
		}},
		OutputSchema: tools.Schema{Fields: []tools.Field{
			{Name: "location", Type: "string"},
			{Name: "temperature", Type: "integer", Description: "Temperature in degrees Celsius"},
			{Name: "condition", Type: "string"},
			{Name: "humidity", Type: "integer", Description: "Relative humidity percentage"},
			{Name: "wind_speed", Type: "integer", Description: "Wind speed in km/h"},
		}},
	}, p.getWeather); err != nil {
		return err
	}

	return registry.Register(tools.Descriptor{
		Name:        "get_forecast",
		Description: "Get weather forecast for the specified location and number of days",
		InputSchema: tools.Schema{Fields: []tools.Field{
			{Name: "location", Type: "string", Description: "City name for forecast", Required: true},
			{Name: "days", Type: "integer", Description: "Number of days to forecast (1-7)", Required: false},
		}},
		OutputSchema: tools.Schema{Fields: []tools.Field{
			{Name: "items", Type: "array", Description: "One entry per forecast day"},
		}},
	}, p.getForecast)
}

func (p *Provider) getWeather(_ context.Context, args map[string]any) (map[string]any, error) {
	location := args["location"].(string)

	weather := map[string]any{
		"location":    location,
		"temperature": randRange(15, 30),
		"condition":   weatherConditions[rand.IntN(len(weatherConditions))],
		"humidity":    randRange(40, 80),
		"wind_speed":  randRange(5, 25),
	}

	p.logger.Debug("generated weather",
		zap.String("location", location),
	)
	return weather, nil
}

func (p *Provider) getForecast(_ context.Context, args map[string]any) (map[string]any, error) {
	location := args["location"].(string)
	days := forecastDays(args["days"])

	items := make([]map[string]any, 0, days)
	for day := 1; day <= days; day++ {
		items = append(items, map[string]any{
			"day":                  day,
			"high":                 randRange(20, 35),
			"low":                  randRange(10, 20),
			"condition":            forecastConditions[rand.IntN(len(forecastConditions))],
			"precipitation_chance": randRange(0, 100),
		})
	}

	p.logger.Debug("generated forecast",
		zap.String("location", location),
		zap.Int("days", days),
	)
	return map[string]any{"items": items}, nil
}

// forecastDays applies the default and clamps to 1..7. The type was
// already schema-checked; decoded JSON numbers arrive as float64.
func forecastDays(raw any) int {
	days := defaultForecastDays
	switch v := raw.(type) {
	case float64:
		days = int(v)
	case int:
		days = v
	}
	if days < 1 {
		days = 1
	}
	if days > maxForecastDays {
		days = maxForecastDays
	}
	return days
}

// randRange returns a uniform int in [lo, hi].
func randRange(lo, hi int) int {
	return lo + rand.IntN(hi-lo+1)
}
