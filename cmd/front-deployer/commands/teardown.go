package commands

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/savaki/front-deployer/internal/orchestrator"
	"github.com/urfave/cli/v2"
)

// TeardownCommand returns the teardown command for deleting front stacks
func TeardownCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "teardown",
		Usage: "Empty the buckets of each front and delete its stack",
		Description: `Deletes the stack {env}-{front} of each selected front. The website and
artifact buckets are emptied first so CloudFormation can remove them.
The repository is deleted with the stack.

Examples:
  # Delete one front after confirmation
  front-deployer teardown --env dev --front Admin

  # Skip confirmation prompt
  front-deployer teardown --env dev --front Admin --force`,
		Flags: []cli.Flag{
			envFlag(),
			regionFlag(),
			configFlag(),
			frontFlag(),
			debugFlag(),
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Skip confirmation prompt",
			},
			&cli.BoolFlag{
				Name:  "wait",
				Usage: "Wait for each stack to be deleted",
				Value: true,
			},
		},
		Action: func(c *cli.Context) error {
			return teardownAction(c, logger)
		},
	}
}

func teardownAction(c *cli.Context, logger *zerolog.Logger) error {
	l := withLevel(c, logger)
	ctx := l.WithContext(c.Context)

	fronts, err := selectFronts(c)
	if err != nil {
		return err
	}

	if !c.Bool("force") {
		fmt.Printf("About to delete %d front stack(s) in %s:\n", len(fronts), c.String("env"))
		for _, front := range fronts {
			fmt.Printf("  - %s\n", orchestrator.StackName(c.String("env"), front.Name))
		}
		fmt.Print("Are you sure? (yes/no): ")
		var response string
		fmt.Scanln(&response)
		response = strings.ToLower(strings.TrimSpace(response))
		if response != "yes" && response != "y" {
			fmt.Println("Teardown cancelled")
			return nil
		}
	}

	orch, err := newOrchestrator(c, logger)
	if err != nil {
		return err
	}

	wait := c.Bool("wait")
	for _, front := range fronts {
		if err := orch.Teardown(ctx, front.Name, orchestrator.TeardownOptions{Wait: wait}); err != nil {
			return fmt.Errorf("%s: %w", front.Name, err)
		}
		fmt.Println(teardownMessage(orchestrator.StackName(c.String("env"), front.Name), wait))
	}
	return nil
}

func teardownMessage(stackName string, wait bool) string {
	if !wait {
		return "✓ deletion requested for " + stackName
	}
	return "✓ deleted " + stackName
}
