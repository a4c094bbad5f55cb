package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"sync"
	"time"

	"github.com/iliyamo/qr-attendance/internal/credential"
	"github.com/iliyamo/qr-attendance/internal/dashboard"
	"github.com/iliyamo/qr-attendance/internal/issuance"
	"github.com/iliyamo/qr-attendance/internal/live"
	"github.com/iliyamo/qr-attendance/internal/model"
)

// runTeach opens a session view: attendance table with live updates plus a
// rotating QR written to -qr every window.
func runTeach(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("teach", flag.ExitOnError)
	section := fs.Int64("section", 0, "sección")
	sessionID := fs.Int64("session", 0, "sesión de clase")
	qrPath := fs.String("qr", "qr.png", "archivo donde se escribe el código QR vigente")
	duration := fs.Duration("duration", 0, "tiempo de exposición (0 = hasta Ctrl+C)")
	_ = fs.Parse(args)
	if *section == 0 || *sessionID == 0 {
		return errors.New("-section y -session son obligatorios")
	}

	u, err := a.identity(ctx)
	if err != nil {
		return err
	}
	if !u.IsTeacher() || u.TeacherID == "" {
		return errors.New("solo los docentes pueden generar códigos QR")
	}
	session, err := findSession(ctx, a, *section, *sessionID)
	if err != nil {
		return err
	}

	var (
		qrMu   sync.Mutex
		lastQR string
	)
	loop := issuance.NewLoop(a.api, issuance.Options{
		Window: a.cfg.QRWindow,
		Logger: a.log,
		OnChange: func(s issuance.Snapshot) {
			if s.Err != nil && !s.Minting {
				a.out.Errorf("No se pudo renovar el código QR: %v\n", s.Err)
			}
			qrMu.Lock()
			defer qrMu.Unlock()
			if s.Credential.QRCode == "" || s.Credential.QRCode == lastQR {
				return
			}
			lastQR = s.Credential.QRCode
			writeQR(a, *qrPath, s.Credential)
		},
	})
	dash := dashboard.New(a.api,
		dashboard.LiveDialer(live.Options{
			BaseURL:   a.cfg.WSBaseURL,
			Heartbeat: a.cfg.HeartbeatInterval,
			Logger:    a.log,
		}),
		dashboard.Options{
			Issuance: loop,
			Logger:   a.log,
			OnChange: func(v dashboard.View) {
				if !v.Loading && v.Err == nil {
					a.out.Rows(v.Session.Topic, v.Rows)
				}
			},
			OnNotice: func(n dashboard.Notice) { a.out.Printf("[%s] %s\n", n.Kind, n.Text) },
		})
	defer dash.Close()

	if err := dash.SelectSession(ctx, session); err != nil {
		return err
	}
	if err := dash.OpenQR(u.TeacherID); err != nil {
		return err
	}

	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}
	<-ctx.Done()
	return nil
}

func writeQR(a *app, path string, ic model.IssuedCredential) {
	png, err := credential.ParseDataURL(ic.QRCode)
	if err != nil {
		a.out.Errorf("Código QR ilegible: %v\n", err)
		return
	}
	if err := os.WriteFile(path, png, 0o644); err != nil {
		a.out.Errorf("No se pudo escribir %s: %v\n", path, err)
		return
	}
	exp := ic.ExpiresAt
	if info, ok := credential.Inspect(ic.Token); ok && !info.ExpiresAt.IsZero() {
		exp = info.ExpiresAt
	}
	if exp.IsZero() {
		a.out.Printf("Código QR actualizado en %s\n", path)
		return
	}
	a.out.Printf("Código QR actualizado en %s (vence %s)\n", path, exp.Local().Format(time.TimeOnly))
}

func findSession(ctx context.Context, a *app, section, id int64) (model.ClassSession, error) {
	sessions, err := a.api.ListSessions(ctx, section)
	if err != nil {
		return model.ClassSession{}, err
	}
	for _, s := range sessions {
		if s.ID == id {
			return s, nil
		}
	}
	return model.ClassSession{}, errors.New("la sesión no pertenece a la sección indicada")
}

func runSessions(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("sessions", flag.ExitOnError)
	section := fs.Int64("section", 0, "sección")
	_ = fs.Parse(args)
	if *section == 0 {
		return errors.New("-section es obligatorio")
	}
	if _, err := a.identity(ctx); err != nil {
		return err
	}
	sessions, err := a.api.ListSessions(ctx, *section)
	if err != nil {
		return err
	}
	a.out.Sessions(sessions)
	return nil
}

// runAttendance prints the roster of a section joined with a session's
// records, the same table the live view shows.
func runAttendance(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("attendance", flag.ExitOnError)
	section := fs.Int64("section", 0, "sección")
	sessionID := fs.Int64("session", 0, "sesión de clase")
	_ = fs.Parse(args)
	if *section == 0 || *sessionID == 0 {
		return errors.New("-section y -session son obligatorios")
	}
	if _, err := a.identity(ctx); err != nil {
		return err
	}
	session, err := findSession(ctx, a, *section, *sessionID)
	if err != nil {
		return err
	}
	roster, err := a.api.ListRoster(ctx, *section)
	if err != nil {
		return err
	}
	records, err := a.api.ListAttendance(ctx, *sessionID)
	if err != nil {
		return err
	}
	a.out.Rows(session.Topic, dashboard.Join(roster, records))
	return nil
}
