package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/savaki/front-deployer/internal/config"
	"github.com/savaki/front-deployer/internal/di"
	"github.com/savaki/front-deployer/internal/orchestrator"
	"github.com/urfave/cli/v2"
)

func envFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "env",
		Aliases:  []string{"e"},
		Usage:    "Environment (dev, stg, or prd) - prefixes stack names and selects the ledger table",
		Required: true,
		EnvVars:  []string{"ENV"},
	}
}

func regionFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "region",
		Usage:   "AWS region (default: from AWS config)",
		EnvVars: []string{"AWS_REGION"},
	}
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Usage:   "Fronts file (default: a single front named Front)",
		EnvVars: []string{"FRONTS_FILE"},
	}
}

func frontFlag() cli.Flag {
	return &cli.StringSliceFlag{
		Name:    "front",
		Aliases: []string{"f"},
		Usage:   "Front(s) to act on (can be specified multiple times). If not specified, acts on every configured front.",
	}
}

func debugFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "debug",
		Usage: "Enable debug logging",
	}
}

// selectFronts loads the fronts file and applies the --front filter.
func selectFronts(c *cli.Context) ([]config.Front, error) {
	fronts, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	return fronts.Select(c.StringSlice("front")...)
}

func withLevel(c *cli.Context, logger *zerolog.Logger) zerolog.Logger {
	if c.Bool("debug") {
		return logger.Level(zerolog.DebugLevel)
	}
	return *logger
}

// newOrchestrator resolves an orchestrator wired to AWS for the --env environment.
func newOrchestrator(c *cli.Context, logger *zerolog.Logger) (*orchestrator.Orchestrator, error) {
	l := withLevel(c, logger)
	ctx := l.WithContext(c.Context)

	container, err := di.New(c.String("env"),
		di.WithContext(ctx),
		di.WithRegion(c.String("region")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	var orch *orchestrator.Orchestrator
	if err := container.Invoke(func(o *orchestrator.Orchestrator) { orch = o }); err != nil {
		return nil, fmt.Errorf("failed to initialize: %w", err)
	}
	return orch, nil
}

func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
