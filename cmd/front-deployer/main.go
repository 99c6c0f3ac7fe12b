package main

import (
	"context"
	"os"

	"github.com/savaki/front-deployer/cmd/front-deployer/commands"
	"github.com/savaki/front-deployer/internal/di"
	"github.com/urfave/cli/v2"
)

func main() {
	logger := di.ProvideLogger()
	ctx := logger.WithContext(context.Background())

	app := &cli.App{
		Name:  "front-deployer",
		Usage: "Static website pipeline deployment toolkit",
		Description: `Synthesizes and deploys the stack of each front: a CodeCommit repository,
a website bucket behind a CloudFront distribution, and a CodePipeline that
builds the source, deploys it to the bucket and invalidates the edge cache.

This tool provides commands for:
  - Rendering and validating front templates offline
  - Deploying, inspecting and tearing down front stacks
  - Listing the deployment ledger of an environment`,
		Commands: []*cli.Command{
			commands.SynthCommand(&logger),
			commands.ValidateCommand(&logger),
			commands.DeployCommand(&logger),
			commands.StatusCommand(&logger),
			commands.TeardownCommand(&logger),
			commands.ListCommand(&logger),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		logger.Error().Err(err).Msg("Application error")
		os.Exit(1)
	}
}
