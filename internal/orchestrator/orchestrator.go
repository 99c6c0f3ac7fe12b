// Package orchestrator drives the lifecycle of front stacks: synthesis,
// policy validation, deployment, status, and teardown. Every deployment is
// recorded in the ledger.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/savaki/front-deployer/internal/cfn"
	"github.com/savaki/front-deployer/internal/config"
	"github.com/savaki/front-deployer/internal/constants"
	"github.com/savaki/front-deployer/internal/dao/frontdao"
	errs "github.com/savaki/front-deployer/internal/errors"
	"github.com/savaki/front-deployer/internal/services"
	"github.com/savaki/front-deployer/internal/synth"
	"github.com/savaki/front-deployer/internal/topology"
	"github.com/savaki/front-deployer/internal/utils"
	"github.com/segmentio/ksuid"
	"golang.org/x/sync/errgroup"
)

// StatusDryRun marks a deployment that was planned but not submitted.
const StatusDryRun = "DRY_RUN"

// DefaultConcurrency bounds the number of fronts deployed at once.
const DefaultConcurrency = 4

// Stacks manages CloudFormation stacks.
type Stacks interface {
	Deploy(ctx context.Context, input services.DeployInput) (*services.DeployResult, error)
	Describe(ctx context.Context, stackName string) (*services.Stack, error)
	Wait(ctx context.Context, stackName string) (*services.Stack, error)
	Delete(ctx context.Context, stackName string) error
	PhysicalID(ctx context.Context, stackName, logicalID string) (string, error)
}

// Buckets stages templates and empties buckets before teardown.
type Buckets interface {
	Upload(ctx context.Context, bucket, key string, data []byte) (string, error)
	Empty(ctx context.Context, bucket string) (int, error)
}

// Ledger records the latest deployment of each front.
type Ledger interface {
	Create(ctx context.Context, input frontdao.CreateInput) (frontdao.Record, error)
	Find(ctx context.Context, id frontdao.ID) (frontdao.Record, error)
	UpdateStatus(ctx context.Context, input frontdao.UpdateInput) error
	QueryByEnv(ctx context.Context, env string) ([]frontdao.Record, error)
	Delete(ctx context.Context, id frontdao.ID) error
}

// Validator checks a synthesized template against the least-privilege policy.
type Validator interface {
	Validate(ctx context.Context, t *cfn.Template, fronts ...string) error
}

// Accounts resolves the deploying account.
type Accounts interface {
	Resolve(ctx context.Context) (*services.Account, error)
}

// Settings are the environment-wide defaults applied to every front.
type Settings struct {
	Env            string
	AccountID      string
	Partition      string
	Branch         string
	BuildImage     string
	PriceClass     string
	TemplateBucket string
	Tags           map[string]string
}

// StackName returns the stack holding a front in an environment.
func StackName(env, front string) string {
	return env + "-" + front
}

type Orchestrator struct {
	settings  Settings
	stacks    Stacks
	buckets   Buckets
	ledger    Ledger
	validator Validator
	accounts  Accounts

	once    sync.Once
	account *services.Account
}

// New returns an Orchestrator. accounts may be nil, in which case an unset
// AccountID defers to the deploying account at stack creation time.
func New(settings Settings, stacks Stacks, buckets Buckets, ledger Ledger, validator Validator, accounts Accounts) *Orchestrator {
	return &Orchestrator{
		settings:  settings,
		stacks:    stacks,
		buckets:   buckets,
		ledger:    ledger,
		validator: validator,
		accounts:  accounts,
	}
}

// Plan is a synthesized and validated front, ready to deploy.
type Plan struct {
	Front      config.Front
	StackName  string
	Topology   *topology.Topology
	Template   *cfn.Template
	Body       []byte
	SHA256     string
	Parameters map[string]string
	Tags       map[string]string
}

// resolveAccount pins the account and partition of the invalidation grant
// when they are not configured.
func (o *Orchestrator) resolveAccount(ctx context.Context) (accountID, partition string) {
	if o.settings.AccountID != "" || o.accounts == nil {
		return o.settings.AccountID, o.settings.Partition
	}

	o.once.Do(func() {
		account, err := o.accounts.Resolve(ctx)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("Failed to resolve account; deferring to the deploying account")
			return
		}
		o.account = account
	})

	if o.account == nil {
		return "", o.settings.Partition
	}
	return o.account.ID, o.account.Partition
}

func (o *Orchestrator) props(ctx context.Context, front config.Front) topology.Props {
	accountID, partition := o.resolveAccount(ctx)

	props := topology.Props{
		FrontName:  front.Name,
		Branch:     front.Branch,
		AccountID:  accountID,
		Partition:  partition,
		PriceClass: front.PriceClass,
	}
	if props.Branch == "" {
		props.Branch = o.settings.Branch
	}
	if props.PriceClass == "" {
		props.PriceClass = o.settings.PriceClass
	}
	if front.BuildImage != "" {
		props.BuildImage = cfn.Literal(front.BuildImage)
	}
	return props
}

// Plan builds, checks, synthesizes and validates the stack of a front.
func (o *Orchestrator) Plan(ctx context.Context, front config.Front) (*Plan, error) {
	topo, err := topology.New(o.props(ctx, front))
	if err != nil {
		return nil, err
	}

	if err := topo.Check(); err != nil {
		return nil, err
	}

	template, err := synth.Template(topo)
	if err != nil {
		return nil, err
	}

	if o.validator != nil {
		if err := o.validator.Validate(ctx, template, front.Name); err != nil {
			return nil, err
		}
	}

	body, err := template.JSON()
	if err != nil {
		return nil, err
	}

	sum, err := template.SHA256()
	if err != nil {
		return nil, err
	}

	tags := map[string]string{"Front": front.Name}
	if o.settings.Env != "" {
		tags["Env"] = o.settings.Env
	}
	maps.Copy(tags, o.settings.Tags)
	maps.Copy(tags, front.Tags)

	parameters := map[string]string{}
	if o.settings.BuildImage != "" {
		parameters[topology.BuildImageParameter] = o.settings.BuildImage
	}

	return &Plan{
		Front:      front,
		StackName:  StackName(o.settings.Env, front.Name),
		Topology:   topo,
		Template:   template,
		Body:       body,
		SHA256:     sum,
		Parameters: parameters,
		Tags:       tags,
	}, nil
}

// DeployOptions control a deployment.
type DeployOptions struct {
	// DryRun plans the deployment without touching the provider.
	DryRun bool
	// Wait blocks until the stack reaches a terminal status.
	Wait bool
}

// Result is the outcome of deploying one front.
type Result struct {
	Env                string `json:"env"`
	Front              string `json:"front"`
	DeployID           string `json:"deploy_id,omitempty"`
	StackName          string `json:"stack_name"`
	StackID            string `json:"stack_id,omitempty"`
	Operation          string `json:"operation,omitempty"`
	Status             string `json:"status"`
	DistributionDomain string `json:"distribution_domain,omitempty"`
	TemplateSHA256     string `json:"template_sha256"`
	TemplateURL        string `json:"template_url,omitempty"`
}

// stage returns the deploy input of a plan, uploading the template when it is
// too large to pass inline or when a template bucket is configured.
func (o *Orchestrator) stage(ctx context.Context, plan *Plan, deployID string) (services.DeployInput, error) {
	input := services.DeployInput{
		StackName:  plan.StackName,
		Parameters: utils.MergeParameters(plan.Parameters),
		Tags:       plan.Tags,
	}

	bucket := o.settings.TemplateBucket
	if bucket == "" {
		if len(plan.Body) > cfn.MaxTemplateBodySize {
			return input, fmt.Errorf("template of %s is %d bytes; a template bucket is required above %d bytes", plan.Front.Name, len(plan.Body), cfn.MaxTemplateBodySize)
		}
		input.TemplateBody = string(plan.Body)
		return input, nil
	}

	key := fmt.Sprintf("%s/%s/%s.json", o.settings.Env, plan.Front.Name, deployID)
	url, err := o.buckets.Upload(ctx, bucket, key, plan.Body)
	if err != nil {
		return input, err
	}
	input.TemplateURL = url
	return input, nil
}

// Deploy creates or updates the stack of a front.
func (o *Orchestrator) Deploy(ctx context.Context, front config.Front, opts DeployOptions) (result *Result, err error) {
	logger := zerolog.Ctx(ctx).With().Str("front", front.Name).Logger()

	defer func(begin time.Time) {
		event := logger.Info()
		if err != nil {
			event = logger.Error().Err(err)
		}
		event.Dur("elapsed", time.Since(begin)).Msg("Deploy front")
	}(time.Now())

	plan, err := o.Plan(ctx, front)
	if err != nil {
		return nil, err
	}

	result = &Result{
		Env:            o.settings.Env,
		Front:          front.Name,
		StackName:      plan.StackName,
		TemplateSHA256: plan.SHA256,
	}

	if opts.DryRun {
		result.Status = StatusDryRun
		return result, nil
	}

	result.DeployID = ksuid.New().String()

	if _, err := o.ledger.Create(ctx, frontdao.CreateInput{
		Env:            o.settings.Env,
		Front:          front.Name,
		DeployID:       result.DeployID,
		StackName:      plan.StackName,
		TemplateSHA256: plan.SHA256,
	}); err != nil {
		logger.Warn().
			Err(err).
			Str("deploy_id", result.DeployID).
			Msg("Failed to record deployment; continuing")
	}

	input, err := o.stage(ctx, plan, result.DeployID)
	if err != nil {
		o.record(ctx, result, frontdao.StatusFailed, err.Error())
		return nil, err
	}
	result.TemplateURL = input.TemplateURL

	deployed, err := o.stacks.Deploy(ctx, input)
	if err != nil {
		o.record(ctx, result, frontdao.StatusFailed, err.Error())
		return nil, err
	}
	result.StackID = deployed.StackID
	result.Operation = deployed.Operation

	logger.Info().
		Str("stack_name", deployed.StackName).
		Str("operation", deployed.Operation).
		Msg("Submitted stack")

	if !opts.Wait && deployed.Operation != services.OperationNone {
		o.record(ctx, result, frontdao.StatusInProgress, "")
		return result, nil
	}

	stack, err := o.stacks.Wait(ctx, plan.StackName)
	if err != nil {
		o.record(ctx, result, frontdao.StatusFailed, err.Error())
		return nil, err
	}
	if result.StackID == "" {
		result.StackID = stack.ID
	}

	domain, ok := stack.Outputs[plan.Topology.Output.LogicalID]
	if !ok {
		err = fmt.Errorf("%w: %s in stack %s", errs.ErrOutputNotFound, plan.Topology.Output.LogicalID, plan.StackName)
		o.record(ctx, result, frontdao.StatusFailed, err.Error())
		return nil, err
	}
	result.DistributionDomain = domain

	o.record(ctx, result, frontdao.StatusSuccess, "")
	return result, nil
}

// record moves the ledger entry of a deployment. A ledger failure is logged
// and does not fail the deployment.
func (o *Orchestrator) record(ctx context.Context, result *Result, status frontdao.Status, reason string) {
	result.Status = string(status)

	err := o.ledger.UpdateStatus(ctx, frontdao.UpdateInput{
		Env:                result.Env,
		Front:              result.Front,
		Status:             status,
		StackID:            result.StackID,
		Operation:          result.Operation,
		StatusReason:       reason,
		DistributionDomain: result.DistributionDomain,
	})
	if err != nil {
		zerolog.Ctx(ctx).Warn().
			Err(err).
			Str("front", result.Front).
			Str("status", string(status)).
			Msg("Failed to record deployment status")
	}
}

// DeployAll deploys fronts concurrently, at most concurrency at a time.
// Every front is attempted; the errors of failed fronts are joined. Results
// are returned in the order of fronts, nil for fronts that failed.
func (o *Orchestrator) DeployAll(ctx context.Context, fronts []config.Front, opts DeployOptions, concurrency int) ([]*Result, error) {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	var (
		results  = make([]*Result, len(fronts))
		failures = make([]error, len(fronts))
		g        errgroup.Group
	)
	g.SetLimit(concurrency)

	for i, front := range fronts {
		g.Go(func() error {
			result, err := o.Deploy(ctx, front, opts)
			if err != nil {
				failures[i] = fmt.Errorf("%s: %w", front.Name, err)
				return nil
			}
			results[i] = result
			return nil
		})
	}
	_ = g.Wait()

	return results, errors.Join(failures...)
}

// Status is the observed state of a front.
type Status struct {
	Front  string           `json:"front"`
	Stack  *services.Stack  `json:"stack,omitempty"`
	Record *frontdao.Record `json:"record,omitempty"`
}

// Status describes the stack of a front and its latest ledger entry. A front
// that was never deployed returns ErrStackNotFound.
func (o *Orchestrator) Status(ctx context.Context, front string) (*Status, error) {
	status := &Status{Front: front}

	stack, err := o.stacks.Describe(ctx, StackName(o.settings.Env, front))
	if err != nil && !errors.Is(err, errs.ErrStackNotFound) {
		return nil, err
	}
	status.Stack = stack

	record, err := o.ledger.Find(ctx, frontdao.NewID(o.settings.Env, front))
	if err != nil && !errors.Is(err, errs.ErrRecordNotFound) {
		return nil, err
	}
	if err == nil {
		status.Record = &record
	}

	if status.Stack == nil && status.Record == nil {
		return nil, fmt.Errorf("%w: %s", errs.ErrStackNotFound, StackName(o.settings.Env, front))
	}
	return status, nil
}

// List returns the ledger entries of every front of the environment.
func (o *Orchestrator) List(ctx context.Context) ([]frontdao.Record, error) {
	return o.ledger.QueryByEnv(ctx, o.settings.Env)
}

// TeardownOptions control a teardown.
type TeardownOptions struct {
	// Wait blocks until the stack is deleted and then drops the ledger entry.
	Wait bool
}

// Teardown empties the buckets of a front and deletes its stack. Buckets must
// be empty before the provider can delete them.
func (o *Orchestrator) Teardown(ctx context.Context, front string, opts TeardownOptions) (err error) {
	logger := zerolog.Ctx(ctx).With().Str("front", front).Logger()

	defer func(begin time.Time) {
		event := logger.Info()
		if err != nil {
			event = logger.Error().Err(err)
		}
		event.Dur("elapsed", time.Since(begin)).Msg("Teardown front")
	}(time.Now())

	topo, err := topology.New(topology.Props{FrontName: front})
	if err != nil {
		return err
	}

	stackName := StackName(o.settings.Env, front)
	for _, logicalID := range []string{topo.Bucket.LogicalID, synth.ArtifactStoreID(topo)} {
		bucket, err := o.stacks.PhysicalID(ctx, stackName, logicalID)
		if errors.Is(err, errs.ErrStackNotFound) {
			continue
		}
		if err != nil {
			return err
		}

		deleted, err := o.buckets.Empty(ctx, bucket)
		if err != nil {
			return err
		}
		logger.Info().Str("bucket", bucket).Int("deleted", deleted).Msg("Emptied bucket")
	}

	id := frontdao.NewID(o.settings.Env, front)
	if _, err := o.ledger.Find(ctx, id); err == nil {
		if err := o.ledger.UpdateStatus(ctx, frontdao.UpdateInput{
			Env:    o.settings.Env,
			Front:  front,
			Status: frontdao.StatusDeleting,
		}); err != nil {
			logger.Warn().Err(err).Msg("Failed to record teardown")
		}
	}

	if err := o.stacks.Delete(ctx, stackName); err != nil {
		return err
	}

	if !opts.Wait {
		return nil
	}

	if _, err := o.stacks.Wait(ctx, stackName); err != nil && !errors.Is(err, errs.ErrStackNotFound) {
		return err
	}

	return o.ledger.Delete(ctx, id)
}

// DefaultSettings fills the environment defaults of settings.
func DefaultSettings(settings Settings) Settings {
	if settings.Branch == "" {
		settings.Branch = constants.DefaultBranch
	}
	if settings.BuildImage == "" {
		settings.BuildImage = constants.DefaultBuildImage
	}
	return settings
}
