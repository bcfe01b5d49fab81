package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler serves the collector's registry in the Prometheus or OpenMetrics
// exposition format, whichever the scraper negotiates. Scrapes themselves are
// counted in promhttp_metric_handler_requests_total.
//
// A nil or disabled collector answers 404, so the route can be mounted
// unconditionally.
func (c *Collector) Handler() http.Handler {
	if !c.enabled() {
		return http.NotFoundHandler()
	}
	// a failing collector drops its own series, not the whole scrape
	return promhttp.InstrumentMetricHandler(c.registry, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		Registry:            c.registry,
		EnableOpenMetrics:   true,
		ErrorHandling:       promhttp.ContinueOnError,
		MaxRequestsInFlight: 4,
	}))
}
