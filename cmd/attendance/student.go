package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"time"

	"github.com/iliyamo/qr-attendance/internal/capture"
	"github.com/iliyamo/qr-attendance/internal/checkin"
	"github.com/iliyamo/qr-attendance/internal/model"
)

// runScan captures one credential, from an uploaded image or from frames of
// a directory standing in for the camera, and submits it.
func runScan(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	imagePath := fs.String("image", "", "imagen con el código QR")
	frames := fs.String("frames", "", "directorio de cuadros usado como cámara")
	timeout := fs.Duration("timeout", 30*time.Second, "tiempo máximo de escaneo con cámara")
	_ = fs.Parse(args)
	if (*imagePath == "") == (*frames == "") {
		return errors.New("use exactamente uno de -image o -frames")
	}

	u, err := a.identity(ctx)
	if err != nil {
		return err
	}
	if !u.IsStudent() || u.StudentID == "" {
		return errors.New("solo los alumnos pueden registrar asistencia")
	}

	scanner := capture.NewScanner(func() (capture.FrameSource, error) {
		return capture.NewDirSource(*frames)
	}, a.cfg.CameraFPS, a.log)
	defer scanner.Close()

	var cred model.Credential
	if *imagePath != "" {
		data, err := os.ReadFile(*imagePath)
		if err != nil {
			return err
		}
		if cred, err = scanner.Upload(data); err != nil {
			return err
		}
	} else {
		if cred, err = scanCamera(ctx, scanner, *timeout); err != nil {
			return err
		}
	}
	a.out.Printf("Código QR detectado, registrando asistencia...\n")

	redirected := make(chan string, 1)
	flow := checkin.NewFlow(checkin.NewService(a.api, a.log), u.StudentID, a.cfg.RedirectDelay,
		func(route string) { redirected <- route })
	defer flow.Close()

	if _, err := flow.Submit(ctx, cred); err != nil {
		return err
	}
	_, msg := flow.Status()
	a.out.Printf("%s\n", msg)
	select {
	case route := <-redirected:
		a.out.Printf("→ %s\n", route)
	case <-ctx.Done():
	}
	return nil
}

func scanCamera(ctx context.Context, s *capture.Scanner, timeout time.Duration) (model.Credential, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	type result struct {
		cred model.Credential
		err  error
	}
	done := make(chan result, 1)
	if err := s.StartCamera(ctx, func(c model.Credential, err error) { done <- result{c, err} }); err != nil {
		return "", err
	}
	select {
	case r := <-done:
		return r.cred, r.err
	case <-ctx.Done():
		return "", errors.New("no se detectó ningún código QR a tiempo")
	}
}
