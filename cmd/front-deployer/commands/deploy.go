package commands

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/savaki/front-deployer/internal/orchestrator"
	"github.com/urfave/cli/v2"
)

// DeployCommand returns the deploy command for creating or updating front stacks
func DeployCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:    "deploy",
		Aliases: []string{"d"},
		Usage:   "Create or update the stack of each front",
		Description: `Synthesizes, validates and deploys the stack {env}-{front} of each front.
Fronts are deployed concurrently. Each deployment is recorded in the
{env}-front-deployer ledger table.

Examples:
  # Deploy every configured front and wait for completion
  front-deployer deploy --env dev --config fronts.yaml

  # Plan only
  front-deployer deploy --env dev --front Admin --dry-run

  # Submit without waiting
  front-deployer deploy --env prd --wait=false`,
		Flags: []cli.Flag{
			envFlag(),
			regionFlag(),
			configFlag(),
			frontFlag(),
			debugFlag(),
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Synthesize and validate without deploying",
			},
			&cli.BoolFlag{
				Name:  "wait",
				Usage: "Wait for each stack to reach a terminal status",
				Value: true,
			},
			&cli.IntFlag{
				Name:    "concurrency",
				Aliases: []string{"c"},
				Usage:   "Max concurrent deployments",
				Value:   orchestrator.DefaultConcurrency,
			},
		},
		Action: func(c *cli.Context) error {
			return deployAction(c, logger)
		},
	}
}

func deployAction(c *cli.Context, logger *zerolog.Logger) error {
	l := withLevel(c, logger)
	ctx := l.WithContext(c.Context)

	fronts, err := selectFronts(c)
	if err != nil {
		return err
	}

	orch, err := newOrchestrator(c, logger)
	if err != nil {
		return err
	}

	opts := orchestrator.DeployOptions{
		DryRun: c.Bool("dry-run"),
		Wait:   c.Bool("wait"),
	}
	results, err := orch.DeployAll(ctx, fronts, opts, c.Int("concurrency"))

	for _, result := range results {
		if result == nil {
			continue
		}
		line := fmt.Sprintf("%-20s %-12s %s", result.StackName, result.Status, result.Operation)
		if result.DistributionDomain != "" {
			line += "  https://" + result.DistributionDomain
		}
		fmt.Println(line)
	}

	return err
}
