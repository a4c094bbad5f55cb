package main

import (
	"context"
	"errors"
	"flag"
	"os"

	"go.uber.org/zap"
)

func runLogin(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "correo institucional")
	password := fs.String("password", "", "contraseña (o ATTENDANCE_PASSWORD)")
	_ = fs.Parse(args)
	if *password == "" {
		*password = os.Getenv("ATTENDANCE_PASSWORD")
	}
	if *email == "" || *password == "" {
		return errors.New("-email y -password son obligatorios")
	}

	res, err := a.api.Login(ctx, *email, *password)
	if err != nil {
		return err
	}
	if err := a.mgr.Login(ctx, res.Tokens); err != nil {
		return err
	}
	switch {
	case res.User.IsTeacher():
		a.out.Printf("Sesión iniciada como docente %s (%s)\n", res.User.TeacherID, res.User.Email)
	case res.User.IsStudent():
		a.out.Printf("Sesión iniciada como alumno %s (%s)\n", res.User.StudentID, res.User.Email)
	default:
		a.out.Printf("Sesión iniciada (%s), rol desconocido\n", res.User.Email)
	}
	return nil
}

// runLogout revokes the refresh token on a best-effort basis and always
// clears the local copy.
func runLogout(ctx context.Context, a *app, _ []string) error {
	tp, err := a.mgr.Tokens(ctx)
	if err == nil && tp.RefreshToken != "" {
		if err := a.api.Logout(ctx, tp.RefreshToken); err != nil {
			a.log.Warn("server logout failed", zap.Error(err))
		}
	}
	if err := a.mgr.Logout(ctx); err != nil {
		return err
	}
	a.out.Printf("Sesión cerrada\n")
	return nil
}

func runWhoami(ctx context.Context, a *app, _ []string) error {
	u, err := a.identity(ctx)
	if err != nil {
		return err
	}
	a.out.Printf("usuario=%d rol=%s docente=%s alumno=%s\n", u.UserID, u.Role, u.TeacherID, u.StudentID)
	return nil
}
