package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog"
	"github.com/savaki/front-deployer/internal/config"
	"github.com/savaki/front-deployer/internal/di"
	"github.com/savaki/front-deployer/internal/models"
	"github.com/savaki/front-deployer/internal/orchestrator"
	"github.com/urfave/cli/v2"
)

// Deployer deploys a set of fronts.
type Deployer interface {
	DeployAll(ctx context.Context, fronts []config.Front, opts orchestrator.DeployOptions, concurrency int) ([]*orchestrator.Result, error)
}

type Handler struct {
	env      string
	fronts   *config.Fronts
	deployer Deployer
}

func NewHandler(ctx context.Context, env string) (*Handler, error) {
	fronts, err := config.Load(os.Getenv("FRONTS_FILE"))
	if err != nil {
		return nil, err
	}

	container, err := di.New(env, di.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	var orch *orchestrator.Orchestrator
	if err := container.Invoke(func(o *orchestrator.Orchestrator) { orch = o }); err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	return &Handler{
		env:      env,
		fronts:   fronts,
		deployer: orch,
	}, nil
}

// HandleDeploy deploys the requested front, or every configured front when
// none is named, and waits for the stacks to settle.
func (h *Handler) HandleDeploy(ctx context.Context, req *models.DeployRequest) (resp *models.DeployResponse, err error) {
	logger := zerolog.Ctx(ctx)

	defer func(begin time.Time) {
		event := logger.Info()
		if err != nil {
			event = logger.Error().Err(err)
		}
		event.
			Str("env", h.env).
			Str("front", req.Front).
			Dur("elapsed", time.Since(begin)).
			Msg("HandleDeploy")
	}(time.Now())

	if req.Env != "" && req.Env != h.env {
		return nil, fmt.Errorf("request for env %q sent to %q deployer", req.Env, h.env)
	}

	var names []string
	if req.Front != "" {
		names = append(names, req.Front)
	}

	fronts, err := h.fronts.Select(names...)
	if err != nil {
		return nil, err
	}

	if req.Branch != "" {
		for i := range fronts {
			fronts[i].Branch = req.Branch
		}
	}

	opts := orchestrator.DeployOptions{
		DryRun: req.DryRun,
		Wait:   true,
	}
	results, err := h.deployer.DeployAll(ctx, fronts, opts, orchestrator.DefaultConcurrency)

	resp = &models.DeployResponse{}
	for _, result := range results {
		if result == nil {
			continue
		}
		resp.Results = append(resp.Results, models.DeployResult{
			Front:              result.Front,
			StackName:          result.StackName,
			Status:             result.Status,
			Operation:          result.Operation,
			DistributionDomain: result.DistributionDomain,
		})
	}
	if err != nil {
		resp.Errors = append(resp.Errors, err.Error())
		return resp, err
	}

	return resp, nil
}

func main() {
	logger := di.ProvideLogger().With().Str("lambda", "deploy-front").Logger()

	// Get environment from ENV or ENVIRONMENT variable
	env := os.Getenv("ENV")
	if env == "" {
		env = os.Getenv("ENVIRONMENT")
	}
	if env == "" {
		logger.Error().Msg("ENV or ENVIRONMENT variable is required")
		os.Exit(1)
	}

	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		// Lambda mode
		handler, err := NewHandler(logger.WithContext(context.Background()), env)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to create handler")
			os.Exit(1)
		}

		// Wrap handler to inject logger into context
		wrappedHandler := func(ctx context.Context, req *models.DeployRequest) (*models.DeployResponse, error) {
			ctx = logger.WithContext(ctx)
			return handler.HandleDeploy(ctx, req)
		}
		lambda.Start(wrappedHandler)
		return
	}

	// CLI mode
	app := &cli.App{
		Name:  "deploy-front",
		Usage: "Deploy the stacks of configured fronts",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "front",
				Usage: "Front to deploy (default: every configured front)",
			},
			&cli.StringFlag{
				Name:  "branch",
				Usage: "Branch the pipeline tracks",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Synthesize and validate without deploying",
			},
			&cli.BoolFlag{
				Name:    "disable-ssm",
				Usage:   "Disable AWS Systems Manager Parameter Store (use environment variables)",
				EnvVars: []string{"DISABLE_SSM"},
			},
		},
		Action: func(c *cli.Context) error {
			ctx := logger.WithContext(c.Context)

			handler, err := NewHandler(ctx, env)
			if err != nil {
				return fmt.Errorf("failed to create handler: %w", err)
			}

			resp, err := handler.HandleDeploy(ctx, &models.DeployRequest{
				Env:    env,
				Front:  c.String("front"),
				Branch: c.String("branch"),
				DryRun: c.Bool("dry-run"),
			})
			if resp != nil {
				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")
				_ = encoder.Encode(resp)
			}
			return err
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Error().Err(err).Msg("Application error")
		os.Exit(1)
	}
}
