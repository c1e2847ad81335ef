package flags

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	oplog "github.com/mantlenetworkio/mantle-fp/op-service/log"
)

const EnvVarPrefix = "MANTLE_FP"

func prefixEnvVars(name string) []string {
	return []string{EnvVarPrefix + "_" + strings.ToUpper(name)}
}

var (
	ConfigFile = &cli.PathFlag{
		Name:      "config",
		Usage:     "TOML file with host settings. Flags set on the command line take precedence.",
		EnvVars:   prefixEnvVars("CONFIG"),
		TakesFile: true,
	}
	RollupConfig = &cli.PathFlag{
		Name:      "rollup.config",
		Usage:     "Rollup chain parameters (JSON)",
		EnvVars:   prefixEnvVars("ROLLUP_CONFIG"),
		TakesFile: true,
	}
	DataDir = &cli.StringFlag{
		Name:    "datadir",
		Usage:   "Directory of the pebble store holding the pre-images served to the client program",
		EnvVars: prefixEnvVars("DATADIR"),
	}
	L1Head = &cli.StringFlag{
		Name:    "l1.head",
		Usage:   "Hash of the L1 head block. Derivation stops after this block is processed.",
		EnvVars: prefixEnvVars("L1_HEAD"),
	}
	L2OutputRoot = &cli.StringFlag{
		Name:    "l2.outputroot",
		Usage:   "Agreed L2 Output Root to start derivation from",
		EnvVars: prefixEnvVars("L2_OUTPUT_ROOT"),
	}
	L2Claim = &cli.StringFlag{
		Name:    "l2.claim",
		Usage:   "Claimed L2 output root to validate",
		EnvVars: prefixEnvVars("L2_CLAIM"),
	}
	L2BlockNumber = &cli.Uint64Flag{
		Name:    "l2.blocknumber",
		Usage:   "Number of the L2 block that the claim is from",
		EnvVars: prefixEnvVars("L2_BLOCK_NUM"),
	}
	Exec = &cli.StringFlag{
		Name:    "exec",
		Usage:   "Run the specified client program as a separate process detached from the host. Default is to run the client program in the host process.",
		EnvVars: prefixEnvVars("EXEC"),
	}
	Server = &cli.BoolFlag{
		Name:    "server",
		Usage:   "Run in pre-image server mode without executing any client program.",
		EnvVars: prefixEnvVars("SERVER"),
	}
)

// Flags contains the list of configuration options available to the binary.
var Flags []cli.Flag

// requiredFlags must be set on the command line, unless a config file provides them.
var requiredFlags = []cli.Flag{
	RollupConfig,
	L1Head,
	L2OutputRoot,
	L2Claim,
	L2BlockNumber,
}

var programFlags = []cli.Flag{
	ConfigFile,
	DataDir,
	Exec,
	Server,
}

func init() {
	Flags = append(Flags, oplog.CLIFlags(EnvVarPrefix)...)
	Flags = append(Flags, requiredFlags...)
	Flags = append(Flags, programFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	if ctx.IsSet(ConfigFile.Name) {
		return nil
	}
	for _, flag := range requiredFlags {
		if !ctx.IsSet(flag.Names()[0]) {
			return fmt.Errorf("flag %s is required", flag.Names()[0])
		}
	}
	if ctx.Bool(Server.Name) && ctx.IsSet(Exec.Name) {
		return fmt.Errorf("flag %s cannot be used with %s", Exec.Name, Server.Name)
	}
	return nil
}
