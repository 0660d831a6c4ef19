package fetch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fahstats/lib/restyutil"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("lib/fetch")

var client = newClient()

func newClient() *resty.Client {
	c := resty.New()
	c.SetTimeout(time.Second * 30)
	// the provider asks for at most one query per hour, so a failed run
	// waits for the next scheduled one instead of retrying
	c.SetRetryCount(0)
	c.SetHeader("user-agent", "fahstats/1.0")
	return c
}

// SetInstrumentOutput recreates the package client with request/response
// dumps and tracing wired in.
func SetInstrumentOutput(out restyutil.InstrumentOutput) {
	client = newClient()
	restyutil.InstrumentClient(client, tracer, out)
}

// StatusError is a completed request that came back non-2xx.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server responded with HTTP %d", e.Code)
}

// Fetch performs a single GET of the compressed summary document and
// returns the raw body. The body is opaque here; decompression and
// parsing belong to lib/extract.
func Fetch(ctx context.Context, sourceURL string) ([]byte, error) {
	// cron entries tend to leave shell quoting on the URL
	sourceURL = strings.Trim(sourceURL, "'")

	res, err := client.R().
		SetContext(ctx).
		Get(sourceURL)
	if err != nil {
		return nil, fmt.Errorf("fetch user summary: %w", err)
	}
	if res.StatusCode() < 200 || res.StatusCode() >= 300 {
		return nil, fmt.Errorf("fetch user summary: %w", &StatusError{Code: res.StatusCode()})
	}
	return res.Body(), nil
}
