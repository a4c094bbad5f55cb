package middleware // reusable HTTP middleware for the attendance backend

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/qr-attendance/internal/utils"
)

// CodeTokenNotValid is the error code clients look for before refreshing.
const CodeTokenNotValid = "token_not_valid"

// JWTAuth validates the Bearer access token and stores its claims in the
// context (see Claims).  Missing, malformed and expired tokens all get 401
// with code token_not_valid; expired ones also say so in "error".
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{
					"code":   CodeTokenNotValid,
					"detail": "missing bearer token",
				})
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			claims, err := utils.ParseAccessToken(secret, raw)
			if err != nil {
				body := echo.Map{"code": CodeTokenNotValid, "detail": "invalid token"}
				if errors.Is(err, jwt.ErrTokenExpired) {
					body["error"] = "token expired"
				}
				return c.JSON(http.StatusUnauthorized, body)
			}

			c.Set(claimsKey, claims)
			c.Set("user_id", claims.Subject)
			c.Set("role", claims.Role)
			return next(c)
		}
	}
}
