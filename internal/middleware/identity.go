package middleware

import "github.com/labstack/echo/v4"

// UserIDKey is the Echo context key JWTAuth stores the token subject under.
const UserIDKey = "user_id"

// UserID returns the authenticated user's identifier, if a token was
// presented on this request.
func UserID(c echo.Context) (string, bool) {
	if s, ok := c.Get(UserIDKey).(string); ok && s != "" {
		return s, true
	}
	return "", false
}
