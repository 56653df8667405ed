package check_teamspeak3

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/consol-monitoring/check_teamspeak3/pkg/ts3query"
	"github.com/mackerelio/checkers"
)

// Check runs the teamspeak3 check with the given command line arguments, writes the
// plugin output and returns the exit code.
func Check(ctx context.Context, output io.Writer, args []string) int {
	cfg, err := ParseArgs(args)
	if err != nil {
		var usageErr *UsageError
		if errors.As(err, &usageErr) {
			fmt.Fprintf(output, "%s\n", usageErr.Usage)

			return int(checkers.UNKNOWN)
		}

		fmt.Fprintf(output, "%s: %s\n", checkers.UNKNOWN.String(), err.Error())

		return int(checkers.UNKNOWN)
	}

	closeLog, err := setLogFile(cfg.LogFile)
	if err != nil {
		fmt.Fprintf(output, "%s: %s\n", checkers.UNKNOWN.String(), err.Error())

		return int(checkers.UNKNOWN)
	}
	defer closeLog()

	if cfg.Debug {
		setLogLevel("debug")
		defer setLogLevel("error")
	}

	result := Run(ctx, cfg, newQueryClient(cfg))
	fmt.Fprintf(output, "%s\n", result.BuildPluginOutput())

	if cfg.PrometheusTextfile != "" {
		if err := writeTextfile(cfg, result); err != nil {
			log.Errorf("%s", err.Error())
		}
	}

	return int(result.State)
}

// Run executes a single check against the given client.
func Run(ctx context.Context, cfg *Config, client QueryClient) *CheckResult {
	return NewOrchestrator(cfg, client).Run(ctx)
}

func newQueryClient(cfg *Config) *ts3query.Client {
	client := ts3query.NewClient(cfg.Timeout)
	client.Logger = log

	return client
}
