package auth

import (
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iliyamo/qr-attendance/internal/model"
	"github.com/iliyamo/qr-attendance/internal/utils"
)

// Identity reads the user carried by an access token without verifying its
// signature.  Only the server can judge the token; this is for picking the
// right screen and filling in the caller's own ids.
func Identity(accessToken string) (model.User, error) {
	claims := &utils.AccessClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return model.User{}, fmt.Errorf("auth: unreadable access token: %w", err)
	}
	id, _ := strconv.ParseUint(claims.Subject, 10, 64)
	role := claims.Role
	if role != model.RoleTeacher && role != model.RoleStudent {
		role = model.RoleUnknown
	}
	return model.User{
		UserID:    id,
		Role:      role,
		TeacherID: claims.TeacherID,
		StudentID: claims.StudentID,
	}, nil
}
