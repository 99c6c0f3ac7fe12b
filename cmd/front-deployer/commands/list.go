package commands

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

// ListCommand returns the list command for showing the deployment ledger
func ListCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List the latest deployment of every front of an environment",
		Flags: []cli.Flag{
			envFlag(),
			regionFlag(),
			debugFlag(),
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print records as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			l := withLevel(c, logger)
			ctx := l.WithContext(c.Context)

			orch, err := newOrchestrator(c, logger)
			if err != nil {
				return err
			}

			records, err := orch.List(ctx)
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return printJSON(records)
			}

			if len(records) == 0 {
				fmt.Println("No deployments found")
				return nil
			}

			fmt.Printf("%-20s %-12s %-28s %-20s %s\n", "FRONT", "STATUS", "DEPLOY ID", "UPDATED", "DOMAIN")
			for _, r := range records {
				updated := time.Unix(r.UpdatedAt, 0).UTC().Format(time.RFC3339)
				fmt.Printf("%-20s %-12s %-28s %-20s %s\n", r.Front, r.Status, r.DeployID, updated, r.DistributionDomain)
			}
			return nil
		},
	}
}
