package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/itinera/pkg/domain"
	"github.com/aretw0/itinera/pkg/registry"
	"github.com/aretw0/itinera/pkg/schema"
)

const (
	defaultWeatherURL  = "https://api.openweathermap.org"
	defaultForecastLen = 5
	weatherTimeout     = 10 * time.Second
)

// Weather queries OpenWeatherMap for geocoding and forecasts.
type Weather struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// NewWeather builds a client with the default endpoint and a bounded HTTP timeout.
func NewWeather(apiKey string) *Weather {
	return &Weather{
		APIKey:     apiKey,
		BaseURL:    defaultWeatherURL,
		HTTPClient: &http.Client{Timeout: weatherTimeout},
	}
}

// ForecastEntry is one three-hour forecast slot, temperatures in Fahrenheit.
type ForecastEntry struct {
	Time        string  `json:"time"`
	TempF       float64 `json:"temp_f"`
	TempMinF    float64 `json:"temp_min_f"`
	TempMaxF    float64 `json:"temp_max_f"`
	Humidity    int     `json:"humidity"`
	WindMPH     float64 `json:"wind_mph"`
	RainChance  float64 `json:"rain_chance"`
	Description string  `json:"description"`
}

// Forecast is the tool result handed to the model.
type Forecast struct {
	Location string          `json:"location"`
	Lat      float64         `json:"lat"`
	Lon      float64         `json:"lon"`
	Entries  []ForecastEntry `json:"entries"`
}

type forecastArgs struct {
	Location string `json:"location"`
	NumDays  int    `json:"num_days"`
}

func (w *Weather) tool() registry.Tool {
	return registry.Tool{
		Name: "get_weather_forecast",
		Description: "Get the upcoming weather forecast for a location. Temperatures are in Fahrenheit; " +
			"convert them with convert_fahrenheit_to_celsius before presenting them.",
		Params: schema.Schema{
			"location": schema.Describe(schema.String(), "city name, optionally with country code"),
			"num_days": schema.Optional(schema.Describe(schema.Int(), "number of forecast entries, default 5")),
		},
		Handler: registry.Typed(func(ctx context.Context, args forecastArgs) (any, error) {
			if strings.TrimSpace(args.Location) == "" {
				return nil, domain.NewToolError(domain.ReasonInvalidArguments, "location is empty")
			}
			n := args.NumDays
			if n <= 0 {
				n = defaultForecastLen
			}
			return w.Forecast(ctx, args.Location, n)
		}),
	}
}

// Forecast geocodes location and returns its first n forecast entries.
func (w *Weather) Forecast(ctx context.Context, location string, n int) (*Forecast, error) {
	lat, lon, err := w.coordinates(ctx, location)
	if err != nil {
		return nil, err
	}

	var body struct {
		List []struct {
			DtTxt string `json:"dt_txt"`
			Main  struct {
				Temp     float64 `json:"temp"`
				TempMin  float64 `json:"temp_min"`
				TempMax  float64 `json:"temp_max"`
				Humidity int     `json:"humidity"`
			} `json:"main"`
			Weather []struct {
				Description string `json:"description"`
			} `json:"weather"`
			Wind struct {
				Speed float64 `json:"speed"`
			} `json:"wind"`
			Pop float64 `json:"pop"`
		} `json:"list"`
	}
	q := url.Values{
		"lat":   {strconv.FormatFloat(lat, 'f', -1, 64)},
		"lon":   {strconv.FormatFloat(lon, 'f', -1, 64)},
		"units": {"imperial"},
	}
	if err := w.get(ctx, "/data/2.5/forecast", q, &body); err != nil {
		return nil, err
	}

	out := &Forecast{Location: location, Lat: lat, Lon: lon}
	for i, item := range body.List {
		if i == n {
			break
		}
		entry := ForecastEntry{
			Time:       item.DtTxt,
			TempF:      item.Main.Temp,
			TempMinF:   item.Main.TempMin,
			TempMaxF:   item.Main.TempMax,
			Humidity:   item.Main.Humidity,
			WindMPH:    item.Wind.Speed,
			RainChance: item.Pop,
		}
		if len(item.Weather) > 0 {
			entry.Description = item.Weather[0].Description
		}
		out.Entries = append(out.Entries, entry)
	}
	return out, nil
}

func (w *Weather) coordinates(ctx context.Context, location string) (float64, float64, error) {
	var places []struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	}
	if err := w.get(ctx, "/geo/1.0/direct", url.Values{"q": {location}, "limit": {"1"}}, &places); err != nil {
		return 0, 0, err
	}
	if len(places) == 0 {
		return 0, 0, domain.NewToolError(domain.ReasonInvalidArguments, "location not found: %s", location)
	}
	return places[0].Lat, places[0].Lon, nil
}

func (w *Weather) get(ctx context.Context, path string, q url.Values, out any) error {
	if w.APIKey == "" {
		return domain.NewToolError(domain.ReasonUpstreamFailure, "weather service is not configured")
	}
	q.Set("appid", w.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(w.BaseURL, "/")+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("weather request build: %w", err)
	}

	client := w.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return domain.NewToolError(domain.ReasonUpstreamFailure, "weather service unreachable: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.NewToolError(domain.ReasonUpstreamFailure, "weather response read: %v", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return domain.NewToolError(domain.ReasonUpstreamFailure, "weather service status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return domain.NewToolError(domain.ReasonUpstreamFailure, "weather response decode: %v", err)
	}
	return nil
}
