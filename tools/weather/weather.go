// Package weather provides a mock weather lookup tool backed by a fixed
// city table. It stands in for a real weather API in agent demos and tests.
package weather

import (
	"context"
	"fmt"
	"strings"

	"github.com/nevindra/lumen"
)

const (
	name        = "weather_query"
	description = "Looks up the current weather for a city. Input should be the city name, for example: 北京."
)

// DefaultReports is the built-in city table.
var DefaultReports = map[string]string{
	"北京": "sunny, 15°C, northwest wind force 2",
	"上海": "cloudy, 18°C, southeast wind force 1",
	"深圳": "showers, 22°C, south wind force 3",
}

var aliases = map[string]string{
	"beijing":  "北京",
	"shanghai": "上海",
	"shenzhen": "深圳",
}

// Tool answers weather queries from a static table.
type Tool struct {
	reports map[string]string
}

var _ lumen.Tool = (*Tool)(nil)

// Option configures a Tool.
type Option func(*Tool)

// WithReports replaces the city table.
func WithReports(reports map[string]string) Option {
	return func(t *Tool) { t.reports = reports }
}

// New creates a weather tool using DefaultReports unless overridden.
func New(opts ...Option) *Tool {
	t := &Tool{reports: DefaultReports}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *Tool) Name() string        { return name }
func (t *Tool) Description() string { return description }

// Execute reports the weather for the city named by input. Unknown cities get
// an apology rather than an error.
func (t *Tool) Execute(_ context.Context, input string) (string, error) {
	city := strings.Trim(strings.TrimSpace(input), "`\"'")
	report, ok := t.lookup(city)
	if !ok {
		report = fmt.Sprintf("sorry, no weather information found for city %q", city)
	}
	return fmt.Sprintf("weather in %s: %s", city, report), nil
}

func (t *Tool) lookup(city string) (string, bool) {
	if r, ok := t.reports[city]; ok {
		return r, true
	}
	if canon, ok := aliases[strings.ToLower(city)]; ok {
		r, ok := t.reports[canon]
		return r, ok
	}
	return "", false
}
