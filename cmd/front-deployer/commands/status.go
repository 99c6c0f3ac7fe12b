package commands

import (
	"github.com/rs/zerolog"
	"github.com/savaki/front-deployer/internal/orchestrator"
	"github.com/urfave/cli/v2"
)

// StatusCommand returns the status command for inspecting front stacks
func StatusCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the stack and latest deployment of each front",
		Flags: []cli.Flag{
			envFlag(),
			regionFlag(),
			configFlag(),
			frontFlag(),
			debugFlag(),
		},
		Action: func(c *cli.Context) error {
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

			var statuses []*orchestrator.Status
			for _, front := range fronts {
				status, err := orch.Status(ctx, front.Name)
				if err != nil {
					return err
				}
				statuses = append(statuses, status)
			}

			return printJSON(statuses)
		},
	}
}
