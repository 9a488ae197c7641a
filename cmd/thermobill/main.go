// Command thermobill prints field-billing receipts on BLE thermal printers.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:           "thermobill",
		Usage:          "Print billing receipts on a Bluetooth LE thermal printer",
		ExitErrHandler: exitErrHandler,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to config file (default: ~/.config/thermobill/config.yaml)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "override log_level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "profile",
				Usage: "override transmit.profile (fast, safe, custom)",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "dotenv file with THERMOBILL_* overrides",
				Value: ".env",
			},
		},
		Commands: []*cli.Command{
			scanCommand(),
			printReceiptCommand(),
			printListCommand(),
			printTextCommand(),
			printImageCommand(),
			testPrintCommand(),
			encodeCommand(),
			journalCommand(),
			initConfigCommand(),
		},
	}

	// Ctrl+C stops a print between chunks.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		os.Exit(1)
	}
}

// exitErrHandler prints every failure so none is swallowed.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	var exitErr cli.ExitCoder
	if errors.As(err, &exitErr) {
		if msg := exitErr.Error(); msg != "" {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(exitErr.ExitCode())
	}
	fmt.Fprintf(os.Stderr, "Error: %s\n", userMessage(err))
	os.Exit(1)
}
