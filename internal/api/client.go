// Package api is the REST boundary of the attendance backend.  Every list
// endpoint is normalized here so callers never see whether the server
// paginated its answer.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/iliyamo/qr-attendance/internal/model"
	"github.com/iliyamo/qr-attendance/internal/utils"
)

// Doer sends a request.  *http.Client and *auth.Manager both satisfy it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Paths are endpoint locations relative to the base URL.
type Paths struct {
	Login        string
	Refresh      string
	Logout       string
	Mint         string
	Verify       string
	VerifyLegacy string
	Attendance   string
	Roster       string
	Sessions     string
}

// DefaultPaths returns the backend's route layout.
func DefaultPaths() Paths {
	return Paths{
		Login:        "api/usuarios/login/",
		Refresh:      "api/usuarios/refresh-token/",
		Logout:       "api/usuarios/logout/",
		Mint:         "api/asistencia/codigos-qr/generar-jwt/",
		Verify:       "api/asistencia/codigos-qr/verificar-jwt/",
		VerifyLegacy: "api/asistencia/codigos-qr/verificar/",
		Attendance:   "api/asistencia/asistencias/",
		Roster:       "api/inscripciones/alumnos-secciones/",
		Sessions:     "api/academico/sesiones/",
	}
}

// Client calls the backend through a Doer.
type Client struct {
	base  string
	doer  Doer
	Paths Paths
	log   *zap.Logger
}

// NewClient builds a client for baseURL (trailing slash added if missing).
func NewClient(baseURL string, doer Doer, log *zap.Logger) *Client {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	if doer == nil {
		doer = http.DefaultClient
	}
	return &Client{base: baseURL, doer: doer, Paths: DefaultPaths(), log: utils.OrNop(log)}
}

// BaseURL returns the REST base with its trailing slash.
func (c *Client) BaseURL() string { return c.base }

// LoginResult is a successful sign-in.
type LoginResult struct {
	Tokens model.TokenPair
	User   model.User
}

type loginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	UserID       uint64 `json:"user_id"`
	Email        string `json:"email"`
	IsDocente    bool   `json:"is_docente"`
	IsAlumno     bool   `json:"is_alumno"`
	DocenteID    string `json:"docente_id"`
	AlumnoID     string `json:"alumno_id"`
}

// Login signs in.  Failures come back as *APIError with a user-facing
// Message: wrong credentials, the server's own text, or an unreachable
// server.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	var out loginResponse
	err := c.do(ctx, http.MethodPost, c.Paths.Login, nil,
		map[string]string{"str_email": email, "password": password}, &out)
	if err != nil {
		if IsNetwork(err) {
			return LoginResult{}, &APIError{Message: MsgUnreachable}
		}
		if ae, ok := AsAPIError(err); ok {
			if ae.Status == http.StatusUnauthorized {
				ae.Message = MsgBadCredentials
			}
			return LoginResult{}, ae
		}
		return LoginResult{}, err
	}
	if out.AccessToken == "" || out.RefreshToken == "" {
		return LoginResult{}, &APIError{Status: http.StatusOK, Message: MsgInvalidLogin}
	}
	role := model.RoleUnknown
	switch {
	case out.IsDocente:
		role = model.RoleTeacher
	case out.IsAlumno:
		role = model.RoleStudent
	}
	return LoginResult{
		Tokens: model.TokenPair{AccessToken: out.AccessToken, RefreshToken: out.RefreshToken},
		User: model.User{
			UserID:    out.UserID,
			Email:     out.Email,
			Role:      role,
			TeacherID: out.DocenteID,
			StudentID: out.AlumnoID,
		},
	}, nil
}

// Logout tells the backend to revoke refreshToken.  Callers clear local
// tokens whatever this returns.
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	return c.do(ctx, http.MethodPost, c.Paths.Logout, nil,
		map[string]string{"refresh_token": refreshToken}, nil)
}

// MintCredential asks the backend for a fresh attendance QR.
func (c *Client) MintCredential(ctx context.Context, sessionID int64, teacherID string) (model.IssuedCredential, error) {
	if sessionID == 0 || teacherID == "" {
		return model.IssuedCredential{}, errors.New("api: session and teacher are required to mint a QR code")
	}
	var out model.IssuedCredential
	err := c.do(ctx, http.MethodPost, c.Paths.Mint, nil, map[string]any{
		"int_idSesionClase": sessionID,
		"str_idDocente":     teacherID,
		"formato":           "base64",
	}, &out)
	if err != nil {
		return model.IssuedCredential{}, err
	}
	if out.QRCode == "" {
		return model.IssuedCredential{}, errors.New("api: mint response without qr_code")
	}
	return out, nil
}

// VerifyCredential submits a scanned credential for studentID.
func (c *Client) VerifyCredential(ctx context.Context, cred model.Credential, studentID string) (model.AttendanceRecord, error) {
	var out model.AttendanceRecord
	err := c.do(ctx, http.MethodPost, c.Paths.Verify, nil, map[string]string{
		"token":        cred.String(),
		"str_idAlumno": studentID,
	}, &out)
	if err != nil {
		return model.AttendanceRecord{}, err
	}
	if out.ID == 0 {
		return model.AttendanceRecord{}, errors.New("api: verify response without int_idAsistencia")
	}
	return out, nil
}

// VerifyCode submits a plain (non-JWT) code.
//
// Deprecated: the JWT endpoint used by VerifyCredential supersedes this one.
func (c *Client) VerifyCode(ctx context.Context, code, studentID string) (model.AttendanceRecord, error) {
	var out model.AttendanceRecord
	err := c.do(ctx, http.MethodPost, c.Paths.VerifyLegacy, nil, map[string]string{
		"str_codigo":   code,
		"str_idAlumno": studentID,
	}, &out)
	return out, err
}

// ListAttendance returns the attendance records of a class session.
func (c *Client) ListAttendance(ctx context.Context, sessionID int64) ([]model.AttendanceRecord, error) {
	q := url.Values{"sesion_clase_id": {strconv.FormatInt(sessionID, 10)}}
	return list[model.AttendanceRecord](ctx, c, c.Paths.Attendance, q)
}

// ListRoster returns the students enrolled in a section.
func (c *Client) ListRoster(ctx context.Context, sectionID int64) ([]model.RosterEntry, error) {
	q := url.Values{"seccion_id": {strconv.FormatInt(sectionID, 10)}}
	return list[model.RosterEntry](ctx, c, c.Paths.Roster, q)
}

// ListSessions returns the class sessions of a section.
func (c *Client) ListSessions(ctx context.Context, sectionID int64) ([]model.ClassSession, error) {
	q := url.Values{"seccion_id": {strconv.FormatInt(sectionID, 10)}}
	return list[model.ClassSession](ctx, c, c.Paths.Sessions, q)
}

func list[T any](ctx context.Context, c *Client, path string, q url.Values) ([]T, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, path, q, nil, &raw); err != nil {
		return nil, err
	}
	return Normalize[T](raw)
}

// Normalize accepts a paginated {"results": [...]} object or a bare array
// and returns the items.  Anything else is an error; null is empty.
func Normalize[T any](raw json.RawMessage) ([]T, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []T{}, nil
	}
	switch trimmed[0] {
	case '[':
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
		return items, nil
	case '{':
		var page struct {
			Results *[]T `json:"results"`
		}
		if err := json.Unmarshal(trimmed, &page); err != nil {
			return nil, err
		}
		if page.Results == nil {
			return nil, errors.New("api: object response without results")
		}
		return *page.Results, nil
	}
	return nil, fmt.Errorf("api: unexpected list response %.20q", trimmed)
}

// do sends a JSON request and decodes a 2xx JSON body into out (when
// non-nil).  Non-2xx becomes *APIError, transport failure *NetworkError;
// errors from the Doer that are not transport failures (a failed token
// refresh) pass through unchanged.
func (c *Client) do(ctx context.Context, method, path string, q url.Values, in, out any) error {
	u := c.base + strings.TrimPrefix(path, "/")
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		var ue *url.Error
		if errors.As(err, &ue) {
			c.log.Warn("request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
			return &NetworkError{Err: err}
		}
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return &NetworkError{Err: err}
	}
	if resp.StatusCode/100 != 2 {
		ae := newAPIError(resp.StatusCode, data)
		c.log.Debug("request rejected", zap.String("path", path), zap.Int("status", ae.Status), zap.String("code", ae.Code))
		return ae
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("api: decode %s: %w", path, err)
	}
	return nil
}
