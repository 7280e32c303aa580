package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jrsteele09/dentalization-auth/backend"
	"github.com/jrsteele09/dentalization-auth/internal/app"
	autherrors "github.com/jrsteele09/dentalization-auth/internal/errors"
	"github.com/jrsteele09/dentalization-auth/internal/utils"
	"github.com/jrsteele09/dentalization-auth/sessions"
	"github.com/jrsteele09/dentalization-auth/users"
	"github.com/rs/zerolog/log"
)

func loginCmd(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	remember := fs.Bool("remember", false, "keep the session for the remember me window")
	if err := fs.Parse(args); err != nil {
		return usageError(err)
	}

	snap, err := a.Sessions.Login(ctx, backend.Credentials{Email: *email, Password: *password, RememberMe: *remember})
	if err != nil {
		return err
	}
	return printJSON(snap)
}

func registerCmd(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	reg := backend.Registration{}
	var role string
	var years int
	fs.StringVar(&reg.Email, "email", "", "account email")
	fs.StringVar(&reg.Password, "password", "", "account password")
	fs.StringVar(&reg.FirstName, "first-name", "", "first name")
	fs.StringVar(&reg.LastName, "last-name", "", "last name")
	fs.StringVar(&reg.Phone, "phone", "", "phone number")
	fs.StringVar(&role, "role", string(users.RolePatient), "patient, dentist, admin or clinic_staff")
	fs.StringVar(&reg.DateOfBirth, "date-of-birth", "", "patient date of birth (YYYY-MM-DD)")
	fs.StringVar(&reg.EmergencyContactName, "emergency-contact", "", "patient emergency contact name")
	fs.StringVar(&reg.EmergencyContactPhone, "emergency-phone", "", "patient emergency contact phone")
	fs.StringVar(&reg.LicenseNumber, "license", "", "dentist license number")
	fs.StringVar(&reg.Specialization, "specialization", "", "dentist specialization")
	fs.IntVar(&years, "years", -1, "dentist years of experience")
	fs.StringVar(&reg.ClinicName, "clinic", "", "dentist clinic name")
	if err := fs.Parse(args); err != nil {
		return usageError(err)
	}
	reg.Role = users.ParseRole(role)
	if years >= 0 {
		reg.YearsOfExperience = utils.Ptr(years)
	}

	snap, err := a.Sessions.Register(ctx, reg)
	if err != nil {
		return err
	}
	return printJSON(snap)
}

func refreshCmd(ctx context.Context, a *app.App, _ []string) error {
	snap, err := a.Sessions.Refresh(ctx)
	if err != nil {
		return err
	}
	return printJSON(snap)
}

func logoutCmd(ctx context.Context, a *app.App, _ []string) error {
	a.Sessions.Logout(ctx)
	fmt.Println("signed out")
	return nil
}

func whoamiCmd(_ context.Context, a *app.App, _ []string) error {
	snap := a.Sessions.Snapshot()
	if !snap.IsAuthenticated {
		return autherrors.ErrNotAuthenticated
	}
	return printJSON(snap)
}

func checkCmd(ctx context.Context, a *app.App, _ []string) error {
	if !a.Sessions.CheckExpiry(ctx) {
		return &autherrors.Error{Kind: autherrors.KindInvalidToken, Op: "[dentalctl.check]", Err: autherrors.ErrNotAuthenticated}
	}
	return printJSON(a.Sessions.Snapshot())
}

func healthCmd(ctx context.Context, a *app.App, _ []string) error {
	report := a.Auth.Health(ctx)
	if err := printJSON(report); err != nil {
		return err
	}
	if !report.Healthy() {
		return autherrors.WithOp(autherrors.ErrUnavailable, "[dentalctl.health]")
	}
	return nil
}

func watchCmd(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	interval := fs.Duration("interval", time.Minute, "how often to check the token expiry")
	if err := fs.Parse(args); err != nil {
		return usageError(err)
	}
	if !a.Sessions.IsTokenValid() {
		return autherrors.ErrNotAuthenticated
	}

	unsubscribe := a.Sessions.Subscribe(func(s sessions.Snapshot) {
		log.Info().Str("state", s.State.String()).Bool("authenticated", s.IsAuthenticated).Msg("session changed")
	})
	defer unsubscribe()

	log.Info().Dur("interval", *interval).Msg("watching session expiry")
	if err := a.Sessions.Watch(ctx, *interval); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func usageError(err error) error {
	return autherrors.Wrap(autherrors.KindValidation, "[dentalctl]", err)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
