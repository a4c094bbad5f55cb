package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/qr-attendance/internal/utils"
)

const claimsKey = "claims"

// Claims returns the access claims stored by JWTAuth, or nil on public routes.
func Claims(c echo.Context) *utils.AccessClaims {
	cl, _ := c.Get(claimsKey).(*utils.AccessClaims)
	return cl
}

// userID is the subject of the current token, "anon" when unauthenticated.
func userID(c echo.Context) string {
	if cl := Claims(c); cl != nil && cl.Subject != "" {
		return cl.Subject
	}
	return "anon"
}
