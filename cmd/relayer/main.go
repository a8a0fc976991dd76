// relayer is the cross-chain privacy relayer: it watches an Aleo
// program for transfer intents and settles each one with a native-token
// transfer on the configured EVM chain.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/luxfi/geth/log"
	"github.com/spf13/pflag"
	"github.com/urfave/cli/v2"

	"github.com/luxfi/privacy-relayer/internal/config"
	"github.com/luxfi/privacy-relayer/internal/logging"
	"github.com/luxfi/privacy-relayer/internal/orchestrator"
)

const clientIdentifier = "relayer"

var app = &cli.App{
	Name:  clientIdentifier,
	Usage: "cross-chain privacy relayer: Aleo transfer intents -> EVM settlement",
}

func init() {
	app.Action = run
	app.Flags = cliFlags(config.BuildFlagSet())
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cliCtx *cli.Context) error {
	v, err := config.BuildViper(config.BuildFlagSet(), os.Args[1:])
	if err != nil {
		return fatal(err)
	}
	cfg, err := config.BuildConfig(v)
	if err != nil {
		return fatal(err)
	}

	if _, err := logging.Init(logging.Config{Level: cfg.LogLevel, File: cfg.LogFile}); err != nil {
		return fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	o, err := orchestrator.New(ctx, cfg)
	if err != nil {
		return fatal(err)
	}

	if err := o.Start(ctx); err != nil {
		return fatal(err)
	}
	log.Info("relayer started", "httpAddr", cfg.HTTPAddr, "aleoProgramId", cfg.AleoProgramID)

	<-ctx.Done()
	log.Info("relayer: shutdown signal received, draining")

	if err := o.Shutdown(); err != nil {
		log.Error("relayer: shutdown error", "err", err)
		os.Exit(1)
	}
	return nil
}

// fatal logs a structured fatal line and returns the error so cli.App
// surfaces it and main exits with code 1, per the misconfiguration /
// missing-keys exit contract.
func fatal(err error) error {
	log.Error("relayer: fatal startup error", "err", err)
	return cli.Exit(err.Error(), 1)
}

// cliFlags adapts a pflag.FlagSet's declarations into urfave/cli flags so
// `relayer --help` documents the same surface BuildViper binds to env
// vars; BuildViper re-parses os.Args directly, so these exist for
// discoverability rather than being consulted by run itself.
func cliFlags(fs *pflag.FlagSet) []cli.Flag {
	var flags []cli.Flag
	fs.VisitAll(func(f *pflag.Flag) {
		flags = append(flags, &cli.StringFlag{Name: f.Name, Usage: f.Usage})
	})
	return flags
}
