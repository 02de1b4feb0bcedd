package api

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"noshow-risk-audit/internal/appointments"
)

// filterFromQuery reads the sidebar filters. Repeated or comma separated
// values are both accepted for channel and area.
func filterFromQuery(c *gin.Context) (appointments.Filter, error) {
	var filter appointments.Filter
	for _, value := range splitValues(c.QueryArray("channel")) {
		channel := appointments.Channel(value)
		if !channel.IsValid() {
			return filter, fmt.Errorf("unknown channel %q", value)
		}
		filter.Channels = append(filter.Channels, channel)
	}
	filter.Areas = splitValues(c.QueryArray("area"))

	var err error
	if filter.From, err = queryDate(c, "from"); err != nil {
		return filter, err
	}
	if filter.To, err = queryDate(c, "to"); err != nil {
		return filter, err
	}
	if filter.MinAge, err = queryIntPtr(c, "min_age"); err != nil {
		return filter, err
	}
	if filter.MaxAge, err = queryIntPtr(c, "max_age"); err != nil {
		return filter, err
	}
	return filter, nil
}

func splitValues(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func queryDate(c *gin.Context, key string) (time.Time, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s date %q", key, value)
	}
	return parsed, nil
}

func queryIntPtr(c *gin.Context, key string) (*int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return nil, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q", key, value)
	}
	return &parsed, nil
}

func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	ptr, err := queryIntPtr(c, key)
	if err != nil || ptr == nil {
		return fallback, err
	}
	return *ptr, nil
}

func queryFloat(c *gin.Context, key string, fallback float64) (float64, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s %q", key, value)
	}
	return parsed, nil
}
