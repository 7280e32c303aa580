// Command dentalctl drives the auth session from a terminal. The session is
// kept in the configured store, so it survives between invocations.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/jrsteele09/dentalization-auth/internal/app"
	"github.com/jrsteele09/dentalization-auth/internal/config"
	"github.com/jrsteele09/dentalization-auth/internal/logging"
	"github.com/rs/zerolog/log"
)

type command struct {
	summary string
	// hydrate restores the stored session before run is called.
	hydrate bool
	run     func(ctx context.Context, a *app.App, args []string) error
}

var commands = map[string]command{
	"login":    {summary: "sign in and store the session", run: loginCmd},
	"register": {summary: "create an account and sign in", run: registerCmd},
	"refresh":  {summary: "exchange the refresh token for new tokens", hydrate: true, run: refreshCmd},
	"logout":   {summary: "revoke and clear the stored session", hydrate: true, run: logoutCmd},
	"whoami":   {summary: "print the stored session", hydrate: true, run: whoamiCmd},
	"check":    {summary: "refresh the session if it is about to expire", hydrate: true, run: checkCmd},
	"health":   {summary: "probe the real database and REST API", run: healthCmd},
	"watch":    {summary: "keep the session fresh until interrupted", hydrate: true, run: watchCmd},
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd, ok := commands[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}

	os.Exit(run(cmd, os.Args[2:]))
}

func run(cmd command, args []string) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	logging.SetupWithWriter(cfg, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("failed to start")
		return 1
	}
	defer a.Close()

	if cmd.hydrate {
		if err := a.Sessions.Hydrate(ctx); err != nil {
			log.Warn().Err(err).Msg("could not restore the stored session")
		}
	}
	if err := cmd.run(ctx, a, args); err != nil {
		log.Debug().Err(err).Msg("command failed")
		fmt.Fprintln(os.Stderr, a.Auth.UserMessage(err))
		return 1
	}
	return 0
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: dentalctl <command> [flags]")
	fmt.Fprintln(os.Stderr)
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %-9s %s\n", name, commands[name].summary)
	}
}
