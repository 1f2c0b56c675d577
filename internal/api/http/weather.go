package httpapi

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weather-assistant/internal/weather"
)

func registerWeatherRoutes(api fiber.Router, service *weather.Service) {
	// Live lookups go through the providers and record the snapshot.
	current := func(c *fiber.Ctx, city string) error {
		q := cityQuery{City: city, Country: c.Query("country")}
		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "city is required")
		}
		snapshot, err := service.Current(c.UserContext(), q.toLocation())
		if err != nil {
			return err
		}
		return ok(c, fiber.StatusOK, snapshot)
	}
	api.Get("/weather/current/:city", func(c *fiber.Ctx) error {
		return current(c, c.Params("city"))
	})
	api.Get("/weather/current", func(c *fiber.Ctx) error {
		if c.Query("lat") == "" && c.Query("lon") == "" {
			return current(c, c.Query("city"))
		}
		q := coordinatesQuery{Lat: c.Query("lat"), Lon: c.Query("lon")}
		loc, err := q.toLocation()
		if err != nil {
			return err
		}
		snapshot, err := service.Current(c.UserContext(), loc)
		if err != nil {
			return err
		}
		return ok(c, fiber.StatusOK, snapshot)
	})

	api.Get("/weather/forecast/:city", func(c *fiber.Ctx) error {
		q := forecastQuery{
			cityQuery: cityQuery{City: c.Params("city"), Country: c.Query("country")},
			Days:      c.QueryInt("days", defaultForecastDays),
		}
		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, weather.ErrInvalidForecastDays.Error())
		}
		forecast, err := service.GetForecast(c.UserContext(), q.toLocation(), q.Days)
		if err != nil {
			return err
		}
		return ok(c, fiber.StatusOK, fiber.Map{
			"location": q.toLocation(),
			"days":     q.Days,
			"forecast": forecast,
		})
	})

	api.Get("/weather/geocode/:city", func(c *fiber.Ctx) error {
		q := cityQuery{City: c.Params("city"), Country: c.Query("country")}
		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "city is required")
		}
		loc, err := service.Geocode(c.UserContext(), q.toLocation())
		if err != nil {
			return err
		}
		return ok(c, fiber.StatusOK, loc)
	})

	// Stored history.
	v1 := api.Group("/v1")

	v1.Get("/weather/current", func(c *fiber.Ctx) error {
		locReq, err := parseLocationQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		snapshot, err := service.GetLatest(locReq.toLocation())
		if err != nil {
			return err
		}
		return c.JSON(snapshot)
	})

	v1.Get("/weather/history", func(c *fiber.Ctx) error {
		var req historyQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		loc := req.Location.toLocation()
		snapshots, err := service.GetRange(loc, req.From, req.To)
		if err != nil {
			return err
		}

		return c.JSON(fiber.Map{
			"location":  loc,
			"from":      req.From,
			"to":        req.To,
			"snapshots": snapshots,
		})
	})
}

// cityQuery identifies a location for live lookups; the country is optional.
type cityQuery struct {
	City    string `validate:"required"`
	Country string
}

func (q cityQuery) toLocation() weather.Location {
	return weather.Location{City: q.City, Country: q.Country}
}

const defaultForecastDays = 5

type forecastQuery struct {
	cityQuery
	Days int `validate:"min=1,max=7"`
}

// currentLocation names places looked up by coordinates alone.
const currentLocation = "現在地"

// coordinatesQuery carries raw latitude and longitude strings.
type coordinatesQuery struct {
	Lat string `validate:"required,latitude"`
	Lon string `validate:"required,longitude"`
}

func (q coordinatesQuery) toLocation() (weather.Location, error) {
	if err := validate.Struct(q); err != nil {
		return weather.Location{}, fiber.NewError(fiber.StatusBadRequest, "lat and lon are required")
	}
	lat, _ := strconv.ParseFloat(q.Lat, 64)
	lon, _ := strconv.ParseFloat(q.Lon, 64)
	return weather.Location{City: currentLocation, Lat: &lat, Lon: &lon}, nil
}

// locationQuery holds query parameters for identifying a stored location.
type locationQuery struct {
	City    string `validate:"required"`
	Country string `validate:"required"`
}

func (l locationQuery) toLocation() weather.Location {
	return weather.Location{
		City:    l.City,
		Country: l.Country,
	}
}

func parseLocationQuery(c *fiber.Ctx) (locationQuery, error) {
	q := locationQuery{
		City:    c.Query("city"),
		Country: c.Query("country"),
	}
	if err := validate.Struct(q); err != nil {
		return q, err
	}
	return q, nil
}

// historyQuery holds query parameters for the history endpoint.
type historyQuery struct {
	Location locationQuery
	From     time.Time `validate:"required"`
	To       time.Time `validate:"required,gtefield=From"`
}

func (h *historyQuery) bind(c *fiber.Ctx) error {
	loc, err := parseLocationQuery(c)
	if err != nil {
		return err
	}
	h.Location = loc

	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" || toStr == "" {
		return errors.New("from and to query parameters are required")
	}

	if h.From, err = parseTime(fromStr); err != nil {
		return err
	}
	if h.To, err = parseTime(toStr); err != nil {
		return err
	}
	return nil
}

// parseTime tries to parse either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}
