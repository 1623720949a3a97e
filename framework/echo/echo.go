// Package echomw adapts the gateway's verification pipeline to a labstack
// echo middleware, for backends that sit behind the same proxy but want to
// re-check tokens in-process instead of trusting headers alone.
package echomw

import (
	"github.com/labstack/echo/v4"

	"github.com/symphainy/authgate"
)

// identityKey is where the middleware stores the allow decision's headers on
// the echo context.
const identityKey = "authgate.decision"

// Middleware verifies the request with the gateway and either aborts with
// the decision's status or stores the identity headers on the context and
// continues.
func Middleware(gw *authgate.Gateway) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			d := gw.Decide(c.Request())
			if !d.Allowed() {
				d.Write(c.Response())
				return nil
			}

			c.Set(identityKey, d)
			for name, values := range d.Headers {
				for _, v := range values {
					c.Request().Header.Set(name, v)
				}
			}
			return next(c)
		}
	}
}

// DecisionFromContext returns the allow decision stored by Middleware, or
// nil when the request never passed through it.
func DecisionFromContext(c echo.Context) *authgate.Decision {
	d, _ := c.Get(identityKey).(*authgate.Decision)
	return d
}
