// Command zarrgen writes the big-endian zarr v2 test fixture, reads it back
// and prints what it saw
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/qri-io/zarrgen/internal/fixture"
	"github.com/qri-io/zarrgen/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Stdout, os.Args[1:])
	stop()
	os.Exit(code)
}

// run parses args, generates or verifies a fixture and returns the process
// exit code
func run(ctx context.Context, stdout io.Writer, args []string) int {
	flags := flag.NewFlagSet("zarrgen", flag.ContinueOnError)
	var usage strings.Builder
	flags.SetOutput(&usage)

	var (
		out         = flags.StringP("out", "o", "", "store directory to write (default "+fixture.DefaultOutput+")")
		configPath  = flags.StringP("config", "c", "", "JSON-with-comments fixture config file")
		compressor  = flags.String("compressor", "", `chunk compressor: "zstd", "gzip" or empty for raw chunks`)
		consolidate = flags.Bool("consolidate", false, "write consolidated .zmetadata after the array")
		verify      = flags.Bool("verify", false, "check an existing store instead of generating one")
		logLevel    = flags.String("log-level", "info", "log level: debug, info, warn, error")
	)

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(stdout, "Usage: zarrgen [flags]")
			flags.SetOutput(stdout)
			flags.PrintDefaults()
			return 0
		}
		logger.L.Error(err)
		return 2
	}
	if flags.NArg() > 0 {
		logger.L.Errorf("unexpected arguments: %v", flags.Args())
		return 2
	}
	if err := logger.SetLevel(*logLevel); err != nil {
		logger.L.Error(err)
		return 2
	}

	cfg := fixture.Default()
	if *configPath != "" {
		var err error
		if cfg, err = fixture.Load(*configPath); err != nil {
			logger.L.Error(err)
			return 1
		}
	}
	if flags.Changed("out") {
		cfg.Output = *out
	}
	if flags.Changed("compressor") {
		cfg.Array.Compressor = *compressor
	}
	if flags.Changed("consolidate") {
		cfg.Consolidate = *consolidate
	}

	if *verify {
		if err := fixture.Verify(cfg.Output, cfg); err != nil {
			logger.L.Error(err)
			return 1
		}
		fmt.Fprintf(stdout, "OK: %s\n", cfg.Output)
		return 0
	}

	if _, err := fixture.Generate(ctx, cfg, stdout); err != nil {
		logger.L.Error(err)
		return 1
	}
	return 0
}
