package main

import (
	"errors"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/mantlenetworkio/mantle-fp/op-program/client/claim"
	"github.com/mantlenetworkio/mantle-fp/op-program/host"
	"github.com/mantlenetworkio/mantle-fp/op-program/host/config"
	"github.com/mantlenetworkio/mantle-fp/op-program/host/flags"
	opservice "github.com/mantlenetworkio/mantle-fp/op-service"
	oplog "github.com/mantlenetworkio/mantle-fp/op-service/log"
)

var (
	GitCommit = ""
	GitDate   = ""
)

// VersionWithMeta holds the textual version string including the metadata.
var VersionWithMeta = opservice.FormatVersion(opservice.Version, GitCommit, GitDate, opservice.Meta)

func main() {
	args := os.Args
	if err := run(args, host.Main); errors.Is(err, claim.ErrClaimNotValid) {
		log.Error("Claim is invalid", "err", err)
		os.Exit(1)
	} else if err != nil {
		log.Error("Application failed", "err", err)
		os.Exit(2)
	}
}

type ConfigAction func(log log.Logger, config *config.Config) error

// run parses the supplied args to create a config.Config instance, sets up logging
// then calls the supplied ConfigAction.
// This allows testing the translation from CLI arguments to Config
func run(args []string, action ConfigAction) error {
	app := cli.NewApp()
	app.Version = VersionWithMeta
	app.Flags = flags.Flags
	app.Name = "mantle-fp"
	app.Usage = "Mantle Fault Proof Program"
	app.Description = "The Mantle Fault Proof Program host serves pre-images to the client program, " +
		"which derives the L2 chain from L1 data and validates the claimed output root."
	app.Action = func(ctx *cli.Context) error {
		logger, err := setupLogging(ctx)
		if err != nil {
			return err
		}
		logger.Info("Starting fault proof program", "version", VersionWithMeta)

		cfg, err := config.NewConfigFromCLI(logger, ctx)
		if err != nil {
			return err
		}
		return action(logger, cfg)
	}

	return app.Run(args)
}

func setupLogging(ctx *cli.Context) (log.Logger, error) {
	logCfg := oplog.ReadCLIConfig(ctx)
	logger := oplog.NewLogger(oplog.AppOut(ctx), logCfg)
	oplog.SetGlobalLogHandler(logger.Handler())
	return logger, nil
}
