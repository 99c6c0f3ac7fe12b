package commands

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/savaki/front-deployer/internal/di"
	"github.com/savaki/front-deployer/internal/services"
	"github.com/urfave/cli/v2"
)

// ValidateCommand returns the validate command for checking front templates
func ValidateCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "Check front templates against the least-privilege policy",
		Description: `Synthesizes each front and evaluates its template against the
least-privilege policy. With --remote, templates are also submitted to
CloudFormation ValidateTemplate.

Examples:
  front-deployer validate --env dev --config fronts.yaml
  front-deployer validate --env dev --remote`,
		Flags: append([]cli.Flag{
			envFlag(),
			regionFlag(),
			configFlag(),
			frontFlag(),
			debugFlag(),
			&cli.BoolFlag{
				Name:  "remote",
				Usage: "Also validate with CloudFormation",
			},
		}, settingsFlags()...),
		Action: func(c *cli.Context) error {
			return validateAction(c, logger)
		},
	}
}

func validateAction(c *cli.Context, logger *zerolog.Logger) error {
	l := withLevel(c, logger)
	ctx := l.WithContext(c.Context)

	fronts, err := selectFronts(c)
	if err != nil {
		return err
	}

	orch, err := offlineOrchestrator(c)
	if err != nil {
		return err
	}

	var stacks *services.StackService
	if c.Bool("remote") {
		container, err := di.New(c.String("env"), di.WithContext(ctx), di.WithRegion(c.String("region")))
		if err != nil {
			return err
		}
		stacks = di.MustGet[*services.StackService](container)
	}

	var failed int
	for _, front := range fronts {
		plan, err := orch.Plan(ctx, front)
		if err == nil && stacks != nil {
			err = stacks.Validate(ctx, services.DeployInput{
				StackName:    plan.StackName,
				TemplateBody: string(plan.Body),
			})
		}
		if err != nil {
			failed++
			fmt.Printf("✗ %s: %v\n", front.Name, err)
			continue
		}
		fmt.Printf("✓ %s (%s)\n", front.Name, plan.SHA256)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d front(s) failed validation", failed, len(fronts))
	}
	return nil
}
