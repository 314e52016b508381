package middleware

// identity.go holds the accessors for what Authenticate and RequestID put
// on the echo context, plus the client key used for rate limiting.

import (
	"net"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/eventdesk/internal/model"
)

const (
	ctxUser      = "user"
	ctxToken     = "token"
	ctxRequestID = "request_id"
)

// CurrentUser returns the authenticated user. ok is false on routes that
// do not run Authenticate.
func CurrentUser(c echo.Context) (model.User, bool) {
	u, ok := c.Get(ctxUser).(model.User)
	return u, ok
}

// BearerToken returns the raw token accepted by Authenticate.
func BearerToken(c echo.Context) string {
	s, _ := c.Get(ctxToken).(string)
	return s
}

// RequestIDFrom returns the id assigned by the RequestID middleware.
func RequestIDFrom(c echo.Context) string {
	s, _ := c.Get(ctxRequestID).(string)
	return s
}

// IPExtractor picks the address RealIP reports. Without trustProxy only
// the TCP peer counts and forwarding headers are ignored. With it,
// X-Forwarded-For is read only when the peer is a trusted proxy, walking
// right to left past trusted hops. An empty trusted list keeps echo's
// default of loopback, link-local and private ranges.
func IPExtractor(trustProxy bool, trusted []*net.IPNet) echo.IPExtractor {
	if !trustProxy {
		return echo.ExtractIPDirect()
	}
	if len(trusted) == 0 {
		return echo.ExtractIPFromXFFHeader()
	}
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, n := range trusted {
		opts = append(opts, echo.TrustIPRange(n))
	}
	return echo.ExtractIPFromXFFHeader(opts...)
}

// ClientKey identifies the caller for rate limiting. It is only as good as
// the echo instance's IPExtractor; see IPExtractor.
func ClientKey(c echo.Context) string {
	if ip := c.RealIP(); ip != "" {
		return ip
	}
	return "unknown"
}
