package resilios

import (
	"net"
	"net/http"
	"time"
)

// newDefaultHTTPClient sets transport-level timeouts and leaves the overall
// request lifetime to context deadlines.
//
// http.Client.Timeout stays unset: a chat send with deep thinking can take
// well over a minute.
func newDefaultHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ForceAttemptHTTP2:     true,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Transport: transport}
}
