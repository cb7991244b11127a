package client

import (
	"net/http"

	"github.com/gregjones/httpcache"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wolfeidau/fitout/internal/logger"
)

// newTransport builds the round tripper chain, innermost first:
// base transport, request logging, optional response cache, optional tracing.
func newTransport(o options) http.RoundTripper {
	var rt http.RoundTripper = logger.NewRequestLogger(o.transport, o.logger)

	if o.caching {
		cache := httpcache.NewTransport(httpcache.NewMemoryCache())
		cache.Transport = rt
		cache.MarkCachedResponses = true
		rt = cache
	}

	if o.tracing {
		rt = otelhttp.NewTransport(rt)
	}

	return rt
}
