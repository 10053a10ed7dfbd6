package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// PatientStore is the narrow read port query_patient_info needs. The
// concrete implementation lives in pkg/storage; this package only depends
// on the interface so it stays free of a storage import.
type PatientStore interface {
	FindPatient(ctx context.Context, query string) (PatientSummary, bool, error)
}

// PatientSummary is the formatted view query_patient_info renders to text.
type PatientSummary struct {
	ID      string
	Name    string
	DOB     string
	Gender  string
	Records []PatientRecordSummary
	Imaging []PatientImagingSummary
}

type PatientRecordSummary struct {
	Date  string
	Type  string
	Title string
}

type PatientImagingSummary struct {
	Date  string
	Type  string
	Title string
}

// queryPatientInfoTool is assignable-only: it is never visible to the main
// agent graph, only to specialists it is assigned to (per the original
// system's comment that this tool is "NOT auto-registered to the global
// registry").
type queryPatientInfoTool struct {
	store PatientStore
}

type queryPatientInfoArgs struct {
	Query string `json:"query" jsonschema:"required,description=Patient ID or name to search for"`
}

// NewQueryPatientInfoTool builds the query_patient_info built-in over a
// storage-backed patient lookup.
func NewQueryPatientInfoTool(store PatientStore) Tool {
	return &queryPatientInfoTool{store: store}
}

func (t *queryPatientInfoTool) Symbol() string { return "query_patient_info" }

func (t *queryPatientInfoTool) GetInfo() Info {
	return Info{
		Symbol:      t.Symbol(),
		Description: "Query patient demographics, recent medical records, and medical imaging by patient ID or name.",
		Schema:      generateSchema[queryPatientInfoArgs](),
	}
}

func (t *queryPatientInfoTool) Execute(ctx context.Context, args map[string]interface{}) Result {
	parsed, err := decodeArgs[queryPatientInfoArgs](args)
	if err != nil {
		return Result{OK: false, Err: err.Error()}
	}
	if strings.TrimSpace(parsed.Query) == "" {
		return Result{OK: false, Err: "query must not be empty"}
	}

	patient, found, err := t.store.FindPatient(ctx, parsed.Query)
	if err != nil {
		return Result{OK: false, Err: err.Error()}
	}
	if !found {
		return Result{OK: true, Value: fmt.Sprintf("No patient found matching query: '%s'", parsed.Query)}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Patient Found: %s (ID: %s)\n", patient.Name, patient.ID)
	fmt.Fprintf(&b, "DOB: %s\n", patient.DOB)
	fmt.Fprintf(&b, "Gender: %s\n", patient.Gender)

	b.WriteString("\nRecent Medical Records:\n")
	if len(patient.Records) == 0 {
		b.WriteString("  No records found.\n")
	} else {
		for _, r := range patient.Records {
			fmt.Fprintf(&b, "  - [%s] %s: %s\n", r.Date, strings.ToUpper(r.Type), r.Title)
		}
	}

	b.WriteString("\nMedical Imaging:\n")
	if len(patient.Imaging) == 0 {
		b.WriteString("  No imaging records found.\n")
	} else {
		for _, img := range patient.Imaging {
			fmt.Fprintf(&b, "  - [%s] %s: %s\n", img.Date, strings.ToUpper(img.Type), img.Title)
		}
	}

	return Result{OK: true, Value: strings.TrimRight(b.String(), "\n")}
}

// getCurrentDatetimeTool is timezone-aware and global-scoped.
type getCurrentDatetimeTool struct{}

type getCurrentDatetimeArgs struct {
	Timezone string `json:"timezone,omitempty" jsonschema:"description=IANA timezone name (e.g. 'America/New_York'). Defaults to UTC."`
}

func NewGetCurrentDatetimeTool() Tool { return &getCurrentDatetimeTool{} }

func (t *getCurrentDatetimeTool) Symbol() string { return "get_current_datetime" }

func (t *getCurrentDatetimeTool) GetInfo() Info {
	return Info{
		Symbol:      t.Symbol(),
		Description: "Get current date and time in a given IANA timezone (defaults to UTC). Automatically handles DST.",
		Schema:      generateSchema[getCurrentDatetimeArgs](),
	}
}

func (t *getCurrentDatetimeTool) Execute(ctx context.Context, args map[string]interface{}) Result {
	parsed, err := decodeArgs[getCurrentDatetimeArgs](args)
	if err != nil {
		return Result{OK: false, Err: err.Error()}
	}
	tzName := parsed.Timezone
	if tzName == "" {
		tzName = "UTC"
	}

	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return Result{OK: false, Err: fmt.Sprintf("Invalid timezone '%s'. Use IANA timezone names (e.g. 'America/New_York', 'UTC', 'Asia/Tokyo').", tzName)}
	}

	utcNow := time.Now().UTC().Truncate(time.Second)
	if tzName == "UTC" {
		return Result{OK: true, Value: fmt.Sprintf("Current time (UTC): %s (%s)", utcNow.Format("Monday, January 2, 2006 at 3:04 PM MST"), utcNow.Format(time.RFC3339))}
	}

	local := utcNow.In(loc)
	return Result{OK: true, Value: fmt.Sprintf(
		"Current time: %s (%s) | UTC: %s",
		local.Format("Monday, January 2, 2006 at 3:04 PM MST"),
		local.Format(time.RFC3339),
		utcNow.Format(time.RFC3339),
	)}
}

// getWeatherTool is a demonstration HTTP-backed tool over the Open-Meteo
// API (no API key required).
type getWeatherTool struct {
	httpClient *http.Client
}

type getWeatherArgs struct {
	Location string `json:"location" jsonschema:"required,description=City name or location string (e.g. 'London, UK')"`
}

func NewGetWeatherTool(client *http.Client) Tool {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &getWeatherTool{httpClient: client}
}

func (t *getWeatherTool) Symbol() string { return "get_weather" }

func (t *getWeatherTool) GetInfo() Info {
	return Info{
		Symbol:      t.Symbol(),
		Description: "Get current weather conditions for a location using the Open-Meteo API.",
		Schema:      generateSchema[getWeatherArgs](),
	}
}

func (t *getWeatherTool) Execute(ctx context.Context, args map[string]interface{}) Result {
	parsed, err := decodeArgs[getWeatherArgs](args)
	if err != nil {
		return Result{OK: false, Err: err.Error()}
	}
	location := strings.TrimSpace(parsed.Location)
	if len(location) < 2 {
		return Result{OK: false, Err: "Please provide a valid location name (at least 2 characters)."}
	}

	lat, lon, name, country, err := t.geocode(ctx, location)
	if err != nil {
		return Result{OK: true, Value: fmt.Sprintf("Error: Location '%s' not found. Please check the spelling and try again.", location)}
	}

	weather, err := t.fetchWeather(ctx, lat, lon)
	if err != nil {
		return Result{OK: true, Value: fmt.Sprintf("Error: Unable to fetch weather data for %s. Please try again later.", name)}
	}

	locationStr := name
	if country != "" {
		locationStr = fmt.Sprintf("%s, %s", name, country)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Current weather in %s:\n", locationStr)
	fmt.Fprintf(&b, "Conditions: %s\n", interpretWeatherCode(weather.WeatherCode))
	fmt.Fprintf(&b, "Temperature: %.1f°C\n", weather.Temperature)
	if weather.FeelsLike != weather.Temperature {
		fmt.Fprintf(&b, "Feels like: %.1f°C\n", weather.FeelsLike)
	}
	fmt.Fprintf(&b, "Humidity: %.0f%%\n", weather.Humidity)
	fmt.Fprintf(&b, "Wind speed: %.1f km/h", weather.WindSpeed)

	return Result{OK: true, Value: b.String()}
}

type weatherReading struct {
	Temperature float64
	FeelsLike   float64
	Humidity    float64
	WindSpeed   float64
	WeatherCode int
}

func (t *getWeatherTool) geocode(ctx context.Context, location string) (lat, lon float64, name, country string, err error) {
	q := url.Values{"name": {location}, "count": {"1"}, "language": {"en"}, "format": {"json"}}
	body, err := t.get(ctx, "https://geocoding-api.open-meteo.com/v1/search?"+q.Encode())
	if err != nil {
		return 0, 0, "", "", err
	}

	var payload struct {
		Results []struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
			Name      string  `json:"name"`
			Country   string  `json:"country"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Results) == 0 {
		return 0, 0, "", "", fmt.Errorf("location not found")
	}

	r := payload.Results[0]
	return r.Latitude, r.Longitude, r.Name, r.Country, nil
}

func (t *getWeatherTool) fetchWeather(ctx context.Context, lat, lon float64) (weatherReading, error) {
	q := url.Values{
		"latitude":  {fmt.Sprintf("%f", lat)},
		"longitude": {fmt.Sprintf("%f", lon)},
		"current":   {"temperature_2m,relative_humidity_2m,apparent_temperature,weather_code,wind_speed_10m"},
		"timezone":  {"auto"},
	}
	body, err := t.get(ctx, "https://api.open-meteo.com/v1/forecast?"+q.Encode())
	if err != nil {
		return weatherReading{}, err
	}

	var payload struct {
		Current struct {
			Temperature2m        float64 `json:"temperature_2m"`
			RelativeHumidity2m   float64 `json:"relative_humidity_2m"`
			ApparentTemperature  float64 `json:"apparent_temperature"`
			WeatherCode          int     `json:"weather_code"`
			WindSpeed10m         float64 `json:"wind_speed_10m"`
		} `json:"current"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return weatherReading{}, err
	}

	return weatherReading{
		Temperature: payload.Current.Temperature2m,
		FeelsLike:   payload.Current.ApparentTemperature,
		Humidity:    payload.Current.RelativeHumidity2m,
		WindSpeed:   payload.Current.WindSpeed10m,
		WeatherCode: payload.Current.WeatherCode,
	}, nil
}

func (t *getWeatherTool) get(ctx context.Context, fullURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstream returned %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

var weatherCodes = map[int]string{
	0: "Clear sky", 1: "Mainly clear", 2: "Partly cloudy", 3: "Overcast",
	45: "Foggy", 48: "Depositing rime fog",
	51: "Light drizzle", 53: "Moderate drizzle", 55: "Dense drizzle",
	61: "Slight rain", 63: "Moderate rain", 65: "Heavy rain",
	71: "Slight snow", 73: "Moderate snow", 75: "Heavy snow", 77: "Snow grains",
	80: "Slight rain showers", 81: "Moderate rain showers", 82: "Violent rain showers",
	85: "Slight snow showers", 86: "Heavy snow showers",
	95: "Thunderstorm", 96: "Thunderstorm with slight hail", 99: "Thunderstorm with heavy hail",
}

func interpretWeatherCode(code int) string {
	if desc, ok := weatherCodes[code]; ok {
		return desc
	}
	return fmt.Sprintf("Unknown weather (code %d)", code)
}
