package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/consol-monitoring/check_teamspeak3/pkg/check_teamspeak3"
)

// Build contains the current git commit id
// compile passing -ldflags "-X main.Build <build sha1>" to set the id.
var Build string

// Revision contains the minor version number (number of commits)
// compile passing -ldflags "-X main.Revision <commits>" to set the revsion number.
var Revision string

func main() {
	if Revision != "" {
		check_teamspeak3.Revision = Revision
	}
	if Build != "" {
		check_teamspeak3.Build = Build
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	rc := check_teamspeak3.Check(ctx, os.Stdout, os.Args[1:])
	cancel()

	os.Exit(rc)
}
