// psktool converts scene descriptions to PSK/PSA skeletal mesh and
// animation files, and inspects or imports existing ones.
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/Faultbox/skelconv/internal/config"
	"github.com/Faultbox/skelconv/internal/logger"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "export":
		err = cmdExport(args)
	case "info":
		err = cmdInfo(args)
	case "dump":
		err = cmdDump(args)
	case "import":
		err = cmdImport(args)
	case "keys":
		err = cmdKeys(args)
	case "config":
		err = cmdConfig(args)
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		logger.Error("command failed", zap.String("command", command), zap.Error(err))
		logger.Sync()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger.Sync()
}

func printUsage() {
	fmt.Println(`psktool - PSK/PSA skeletal mesh and animation utility

Usage:
  psktool <command> [options] <file>

Commands:
  export [-o out.psk] <scene.yaml>   Write a PSK (and a PSA when the scene has actions)
  info   <file.psk|file.psa>         Show the chunk table and record counts
  dump   [-n N] <file.psk|file.psa>  Dump parsed records
  import [-o out.glb] <file.psk>     Rebuild the model (and its .psa) as a glTF preview
  keys   <file.psa> [action]         List animation keys per action
  config [-save | -o file]           Print or save the effective config
  config -encodings                  List the accepted name encodings

Common options:
  -config <file>   Config file (default ./psktool.yaml, then the user config dir)
  -debug           Debug logging
  -encoding <cp>   Code page of names (default windows-1252, "raw" for none)
  -strict          Reject chunks without the standard type flag
  -no-psa          Skip the animation file on export and import

Examples:
  psktool export -fps 30 hero.yaml
  psktool info hero.psk
  psktool keys hero.psa Walk
  psktool config -encoding euc-kr -save`)
}

// setup parses a subcommand's flags, loads config and starts logging.
func setup(fs *flag.FlagSet, args []string) (*config.Config, error) {
	flags := config.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg, err := config.Load(flags)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	logger.Sugar.Debugf("Config: %+v", cfg)
	return cfg, nil
}

// usageError reports a missing argument for a subcommand.
func usageError(fs *flag.FlagSet, usage string) error {
	fs.Usage()
	return fmt.Errorf("usage: psktool %s", usage)
}
