// Package metric provides the RED (requests, errors, duration) instrumentation
// used by service middlewares.
package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/resourcedb/resourcedb/kit/platform/errors"
)

func errCode(err error) string {
	return errors.ErrorCode(err)
}

// REDClient records request counts, error counts and durations per operation
// for one service.
type REDClient struct {
	requests *prometheus.CounterVec
	errs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// New registers and returns a RED metrics client for the named service.
func New(reg prometheus.Registerer, service string) *REDClient {
	c := &REDClient{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "resourcedb",
			Subsystem: service,
			Name:      "call_total",
			Help:      "Number of calls",
		}, []string{"method"}),
		errs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "resourcedb",
			Subsystem: service,
			Name:      "error_total",
			Help:      "Number of errors encountered",
		}, []string{"method", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "resourcedb",
			Subsystem: service,
			Name:      "duration_seconds",
			Help:      "Duration of calls",
		}, []string{"method"}),
	}
	reg.MustRegister(c.requests, c.errs, c.duration)
	return c
}

// Record starts recording one call of the named method. The returned function
// finalizes the observation and passes the error through unchanged.
func (c *REDClient) Record(method string) func(error) error {
	start := time.Now()
	return func(err error) error {
		c.requests.With(prometheus.Labels{"method": method}).Inc()
		c.duration.With(prometheus.Labels{"method": method}).Observe(time.Since(start).Seconds())
		if err != nil {
			c.errs.With(prometheus.Labels{"method": method, "code": errCode(err)}).Inc()
		}
		return err
	}
}
