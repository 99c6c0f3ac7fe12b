package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/savaki/front-deployer/internal/orchestrator"
	"github.com/savaki/front-deployer/internal/policy"
	"github.com/urfave/cli/v2"
)

func settingsFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "branch",
			Usage: "Branch tracked by the pipelines",
		},
		&cli.StringFlag{
			Name:  "account-id",
			Usage: "Account scoping the invalidation grant (default: the deploying account)",
		},
		&cli.StringFlag{
			Name:  "partition",
			Usage: "Partition of the account (default: the deploying partition)",
		},
		&cli.StringFlag{
			Name:  "price-class",
			Usage: "CloudFront price class",
		},
	}
}

// offlineOrchestrator plans fronts without touching AWS.
func offlineOrchestrator(c *cli.Context) (*orchestrator.Orchestrator, error) {
	validator, err := policy.NewValidator()
	if err != nil {
		return nil, err
	}

	settings := orchestrator.DefaultSettings(orchestrator.Settings{
		Env:        c.String("env"),
		AccountID:  c.String("account-id"),
		Partition:  c.String("partition"),
		Branch:     c.String("branch"),
		PriceClass: c.String("price-class"),
	})
	return orchestrator.New(settings, nil, nil, nil, validator, nil), nil
}

// SynthCommand returns the synth command for rendering front templates
func SynthCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "synth",
		Usage: "Render the CloudFormation template of each front",
		Description: `Builds, checks, synthesizes and validates the template of each front
without contacting AWS. Templates are written to stdout, or to
{out}/{env}-{front}.template.{format} when --out is given.

Examples:
  # Render the default front as YAML
  front-deployer synth --env dev

  # Render selected fronts as JSON files
  front-deployer synth --env dev --config fronts.yaml --front Admin --format json --out build/`,
		Flags: append([]cli.Flag{
			envFlag(),
			configFlag(),
			frontFlag(),
			debugFlag(),
			&cli.StringFlag{
				Name:  "format",
				Usage: "Output format (yaml or json)",
				Value: "yaml",
			},
			&cli.StringFlag{
				Name:  "out",
				Usage: "Output directory",
			},
		}, settingsFlags()...),
		Action: func(c *cli.Context) error {
			return synthAction(c, logger)
		},
	}
}

func synthAction(c *cli.Context, logger *zerolog.Logger) error {
	l := withLevel(c, logger)
	ctx := l.WithContext(c.Context)

	format := c.String("format")
	if format != "yaml" && format != "json" {
		return fmt.Errorf("unsupported format %q: expected yaml or json", format)
	}

	fronts, err := selectFronts(c)
	if err != nil {
		return err
	}

	orch, err := offlineOrchestrator(c)
	if err != nil {
		return err
	}

	out := c.String("out")
	if out != "" {
		if err := os.MkdirAll(out, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", out, err)
		}
	}

	for _, front := range fronts {
		plan, err := orch.Plan(ctx, front)
		if err != nil {
			return fmt.Errorf("%s: %w", front.Name, err)
		}

		data := plan.Body
		if format == "yaml" {
			if data, err = plan.Template.YAML(); err != nil {
				return err
			}
		}

		if out == "" {
			fmt.Print(string(data))
			if format == "json" {
				fmt.Println()
			}
			continue
		}

		path := filepath.Join(out, fmt.Sprintf("%s.template.%s", plan.StackName, format))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		l.Info().
			Str("front", front.Name).
			Str("path", path).
			Str("sha256", plan.SHA256).
			Msg("Wrote template")
	}

	return nil
}
