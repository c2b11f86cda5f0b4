package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/ironsheep/exam-diagrams/internal/config"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := &cli.Command{
		Name:    "exam-diagrams",
		Usage:   "Find and crop the diagrams of exam question PDFs",
		Version: fmt.Sprintf("%s (built %s, commit %s)", Version, BuildTime, GitCommit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML configuration file",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output directory for pages, crops and reports",
			},
		},
		Commands: []*cli.Command{
			processCommand(),
			detectCommand(),
			regionsCommand(),
			serveCommand(),
		},
	}

	if err := cmd.Run(ctx, os.Args); err != nil {
		slog.Error("exam-diagrams failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration named by --config, applies the
// command-line overrides and installs the logger. Logs go to stderr; stdout
// carries results and the MCP protocol.
func loadConfig(cmd *cli.Command) (config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return config.Config{}, err
	}
	if cmd.IsSet("output") {
		cfg.OutputDir = cmd.String("output")
	}
	slog.SetDefault(cfg.Logger(os.Stderr))
	return cfg, nil
}
