package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"

	"streamwatch/internal/app"
	"streamwatch/internal/watch"
)

// restartExitCode tells the supervisor (systemd RestartForceExitStatus) to
// restart the process after a guard-requested exit.
const restartExitCode = 64

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.json", "path to config file (json or yaml)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfgPath)
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	err = a.Run(ctx)

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	_ = a.Close()

	switch {
	case err == nil:
	case errors.Is(err, watch.ErrRestartRequested):
		fmt.Println("restart requested by resource guard")
		os.Exit(restartExitCode)
	default:
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
}
