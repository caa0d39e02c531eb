package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/matheus3301/offsync/internal/daemon"
	"github.com/matheus3301/offsync/internal/logging"
	"github.com/matheus3301/offsync/internal/session"
	"go.uber.org/fx"
)

func main() {
	userFlag := flag.String("user", "", "user id (overrides config default)")
	levelFlag := flag.String("log-level", "info", "log level: debug, info, warn, error")
	quietFlag := flag.Bool("quiet", false, "log to file only")
	flag.Parse()

	userID := session.Resolve(*userFlag)
	if err := session.ValidateName(userID); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{
			UserID:   userID,
			LogLevel: logging.ParseLevel(*levelFlag),
			Quiet:    *quietFlag,
		}),
		fx.NopLogger,
	)
	if err := app.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app.Run()
}
