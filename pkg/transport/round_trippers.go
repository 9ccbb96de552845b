package transport

import (
	"net/http"
)

// HeaderOption fills one header on an outgoing request.
type HeaderOption func(h http.Header)

type defaultHeadersRoundTripper struct {
	next    http.RoundTripper
	options []HeaderOption
}

// NewDefaultHeadersRoundTripper returns a RoundTripper that fills in headers the request did not set itself,
// then hands the request over to next. Headers set on the request always win.
func NewDefaultHeadersRoundTripper(next http.RoundTripper, opts ...HeaderOption) http.RoundTripper {
	return &defaultHeadersRoundTripper{next: next, options: opts}
}

func (rt *defaultHeadersRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not modify the caller's request.
	req = req.Clone(req.Context())
	for _, opt := range rt.options {
		opt(req.Header)
	}
	return rt.next.RoundTrip(req)
}

// WithHeader sets key to value unless the request already carries key.
func WithHeader(key, value string) HeaderOption {
	return func(h http.Header) {
		if h.Get(key) == "" {
			h.Set(key, value)
		}
	}
}

// WithUserAgent is a functional option to set the HTTP client user agent.
func WithUserAgent(userAgent string) HeaderOption {
	return WithHeader("User-Agent", userAgent)
}

// WithReferer is a functional option to set the HTTP client referer.
func WithReferer(referer string) HeaderOption {
	return WithHeader("Referer", referer)
}

// WithAcceptLanguage is a functional option to set the HTTP client accept language.
func WithAcceptLanguage(acceptLanguage string) HeaderOption {
	return WithHeader("Accept-Language", acceptLanguage)
}
