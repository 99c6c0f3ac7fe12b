package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
	"github.com/savaki/front-deployer/internal/constants"
	errs "github.com/savaki/front-deployer/internal/errors"
)

// Stack operations reported by Deploy.
const (
	OperationCreate = "CREATE"
	OperationUpdate = "UPDATE"
	OperationNone   = "NONE"
)

// CloudFormationAPI is the subset of the CloudFormation client used by StackService.
type CloudFormationAPI interface {
	CreateStack(ctx context.Context, params *cloudformation.CreateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.CreateStackOutput, error)
	UpdateStack(ctx context.Context, params *cloudformation.UpdateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.UpdateStackOutput, error)
	DeleteStack(ctx context.Context, params *cloudformation.DeleteStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DeleteStackOutput, error)
	DescribeStacks(ctx context.Context, params *cloudformation.DescribeStacksInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error)
	DescribeStackEvents(ctx context.Context, params *cloudformation.DescribeStackEventsInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStackEventsOutput, error)
	DescribeStackResource(ctx context.Context, params *cloudformation.DescribeStackResourceInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStackResourceOutput, error)
	ValidateTemplate(ctx context.Context, params *cloudformation.ValidateTemplateInput, optFns ...func(*cloudformation.Options)) (*cloudformation.ValidateTemplateOutput, error)
}

// DeployInput describes a stack create or update. Exactly one of
// TemplateBody and TemplateURL is set.
type DeployInput struct {
	StackName    string
	TemplateBody string
	TemplateURL  string
	Parameters   []types.Parameter
	Tags         map[string]string
}

type DeployResult struct {
	StackName string `json:"stack_name"`
	StackID   string `json:"stack_id"`
	Operation string `json:"operation"`
}

// Stack is the observed state of a stack.
type Stack struct {
	Name         string            `json:"name"`
	ID           string            `json:"id"`
	Status       string            `json:"status"`
	StatusReason string            `json:"status_reason,omitempty"`
	Outputs      map[string]string `json:"outputs,omitempty"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// StackService creates, updates, observes and deletes CloudFormation stacks.
type StackService struct {
	client       CloudFormationAPI
	pollInterval time.Duration
}

func NewStackService(client CloudFormationAPI) *StackService {
	return &StackService{
		client:       client,
		pollInterval: 10 * time.Second,
	}
}

// WithPollInterval returns a copy of s polling at interval.
func (s *StackService) WithPollInterval(interval time.Duration) *StackService {
	c := *s
	c.pollInterval = interval
	return &c
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "ValidationError" && strings.Contains(apiErr.ErrorMessage(), "does not exist")
	}
	return false
}

func isNoUpdates(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "ValidationError" &&
			(strings.Contains(apiErr.ErrorMessage(), "No updates are to be performed") ||
				strings.Contains(apiErr.ErrorMessage(), "No updates to be performed"))
	}
	return false
}

// Describe returns the current state of a stack, or ErrStackNotFound.
func (s *StackService) Describe(ctx context.Context, stackName string) (*Stack, error) {
	result, err := s.client.DescribeStacks(ctx, &cloudformation.DescribeStacksInput{
		StackName: aws.String(stackName),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", errs.ErrStackNotFound, stackName)
		}
		return nil, fmt.Errorf("failed to describe stack %s: %w", stackName, err)
	}
	if len(result.Stacks) == 0 {
		return nil, fmt.Errorf("%w: %s", errs.ErrStackNotFound, stackName)
	}

	stack := result.Stacks[0]
	outputs := make(map[string]string, len(stack.Outputs))
	for _, o := range stack.Outputs {
		outputs[aws.ToString(o.OutputKey)] = aws.ToString(o.OutputValue)
	}

	updatedAt := aws.ToTime(stack.CreationTime)
	if stack.LastUpdatedTime != nil {
		updatedAt = *stack.LastUpdatedTime
	}

	return &Stack{
		Name:         aws.ToString(stack.StackName),
		ID:           aws.ToString(stack.StackId),
		Status:       string(stack.StackStatus),
		StatusReason: aws.ToString(stack.StackStatusReason),
		Outputs:      outputs,
		UpdatedAt:    updatedAt,
	}, nil
}

// Exists reports whether a stack can be described.
func (s *StackService) Exists(ctx context.Context, stackName string) (bool, error) {
	_, err := s.Describe(ctx, stackName)
	if errors.Is(err, errs.ErrStackNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func tags(m map[string]string) []types.Tag {
	result := []types.Tag{
		{Key: aws.String(constants.ManagedByTag), Value: aws.String(constants.ManagedByValue)},
	}
	for _, k := range slices.Sorted(maps.Keys(m)) {
		if k == constants.ManagedByTag {
			continue
		}
		result = append(result, types.Tag{Key: aws.String(k), Value: aws.String(m[k])})
	}
	return result
}

func templateSource(input DeployInput) (body, url *string) {
	if input.TemplateURL != "" {
		return nil, aws.String(input.TemplateURL)
	}
	return aws.String(input.TemplateBody), nil
}

var capabilities = []types.Capability{
	types.CapabilityCapabilityIam,
	types.CapabilityCapabilityNamedIam,
}

// Deploy creates the stack if it does not exist and updates it otherwise. A
// stack left in ROLLBACK_COMPLETE by a failed create cannot be updated, so it
// is deleted and created again.
func (s *StackService) Deploy(ctx context.Context, input DeployInput) (*DeployResult, error) {
	logger := zerolog.Ctx(ctx)

	current, err := s.Describe(ctx, input.StackName)
	switch {
	case errors.Is(err, errs.ErrStackNotFound):
		return s.create(ctx, input)
	case err != nil:
		return nil, err
	}

	if current.Status == string(types.StackStatusRollbackComplete) {
		logger.Warn().
			Str("stack_name", input.StackName).
			Msg("Stack is in ROLLBACK_COMPLETE; deleting before create")
		if err := s.Delete(ctx, input.StackName); err != nil {
			return nil, err
		}
		if _, err := s.Wait(ctx, input.StackName); err != nil && !errors.Is(err, errs.ErrStackNotFound) {
			return nil, err
		}
		return s.create(ctx, input)
	}

	return s.update(ctx, input, current)
}

func (s *StackService) create(ctx context.Context, input DeployInput) (*DeployResult, error) {
	body, url := templateSource(input)
	result, err := s.client.CreateStack(ctx, &cloudformation.CreateStackInput{
		StackName:    aws.String(input.StackName),
		TemplateBody: body,
		TemplateURL:  url,
		Parameters:   input.Parameters,
		Capabilities: capabilities,
		Tags:         tags(input.Tags),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create stack %s: %w", input.StackName, err)
	}

	return &DeployResult{
		StackName: input.StackName,
		StackID:   aws.ToString(result.StackId),
		Operation: OperationCreate,
	}, nil
}

// update applies input to the existing stack current. When there is nothing
// to change, the result carries the id of current.
func (s *StackService) update(ctx context.Context, input DeployInput, current *Stack) (*DeployResult, error) {
	logger := zerolog.Ctx(ctx)

	body, url := templateSource(input)
	result, err := s.client.UpdateStack(ctx, &cloudformation.UpdateStackInput{
		StackName:    aws.String(input.StackName),
		TemplateBody: body,
		TemplateURL:  url,
		Parameters:   input.Parameters,
		Capabilities: capabilities,
		Tags:         tags(input.Tags),
	})
	if err != nil {
		if isNoUpdates(err) {
			logger.Info().Str("stack_name", input.StackName).Msg("No updates needed for stack")
			return &DeployResult{
				StackName: input.StackName,
				StackID:   current.ID,
				Operation: OperationNone,
			}, nil
		}
		return nil, fmt.Errorf("failed to update stack %s: %w", input.StackName, err)
	}

	return &DeployResult{
		StackName: input.StackName,
		StackID:   aws.ToString(result.StackId),
		Operation: OperationUpdate,
	}, nil
}

// Validate asks CloudFormation to parse the template.
func (s *StackService) Validate(ctx context.Context, input DeployInput) error {
	body, url := templateSource(input)
	_, err := s.client.ValidateTemplate(ctx, &cloudformation.ValidateTemplateInput{
		TemplateBody: body,
		TemplateURL:  url,
	})
	if err != nil {
		return fmt.Errorf("template rejected by CloudFormation: %w", err)
	}
	return nil
}

// Delete requests deletion of a stack. Deleting a missing stack is not an error.
func (s *StackService) Delete(ctx context.Context, stackName string) error {
	_, err := s.client.DeleteStack(ctx, &cloudformation.DeleteStackInput{
		StackName: aws.String(stackName),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete stack %s: %w", stackName, err)
	}
	return nil
}

// IsInProgress reports whether status is transitional.
func IsInProgress(status string) bool {
	return strings.HasSuffix(status, "_IN_PROGRESS")
}

// IsFailedStatus reports whether status is terminal and unsuccessful.
func IsFailedStatus(status types.StackStatus) bool {
	failedStatuses := []types.StackStatus{
		types.StackStatusCreateFailed,
		types.StackStatusUpdateFailed,
		types.StackStatusDeleteFailed,
		types.StackStatusRollbackFailed,
		types.StackStatusUpdateRollbackFailed,
		types.StackStatusRollbackComplete,
		types.StackStatusUpdateRollbackComplete,
	}

	for _, failedStatus := range failedStatuses {
		if status == failedStatus {
			return true
		}
	}
	return false
}

// Wait polls a stack until it leaves its in-progress state. A stack that ends
// in a failed state returns ErrStackFailed along with the reasons of its most
// recent failed resources. A stack deleted while waiting returns ErrStackNotFound.
func (s *StackService) Wait(ctx context.Context, stackName string) (*Stack, error) {
	logger := zerolog.Ctx(ctx)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		stack, err := s.Describe(ctx, stackName)
		if err != nil {
			return nil, err
		}

		if !IsInProgress(stack.Status) {
			if stack.Status == string(types.StackStatusDeleteComplete) {
				return nil, fmt.Errorf("%w: %s", errs.ErrStackNotFound, stackName)
			}
			if IsFailedStatus(types.StackStatus(stack.Status)) {
				return stack, s.failure(ctx, stack)
			}
			return stack, nil
		}

		logger.Debug().
			Str("stack_name", stackName).
			Str("status", stack.Status).
			Msg("Waiting for stack")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *StackService) failure(ctx context.Context, stack *Stack) error {
	logger := zerolog.Ctx(ctx)

	reasons := []string{}
	if stack.StatusReason != "" {
		reasons = append(reasons, stack.StatusReason)
	}

	events, err := s.FailedEvents(ctx, stack.Name)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to get stack events")
	}
	for i := range events {
		event := &events[i]
		if event.ResourceStatusReason == nil {
			continue
		}
		logger.Info().
			Str("resource_id", aws.ToString(event.LogicalResourceId)).
			Str("status", string(event.ResourceStatus)).
			Str("reason", *event.ResourceStatusReason).
			Msg("Stack event")
		reasons = append(reasons, aws.ToString(event.LogicalResourceId)+": "+*event.ResourceStatusReason)
	}

	return fmt.Errorf("%w: %s is %s: %s", errs.ErrStackFailed, stack.Name, stack.Status, strings.Join(reasons, "; "))
}

// FailedEvents returns up to ten of the most recent failed resource events.
func (s *StackService) FailedEvents(ctx context.Context, stackName string) ([]types.StackEvent, error) {
	result, err := s.client.DescribeStackEvents(ctx, &cloudformation.DescribeStackEventsInput{
		StackName: aws.String(stackName),
	})
	if err != nil {
		return nil, err
	}

	var recentEvents []types.StackEvent
	for i := range result.StackEvents {
		if len(recentEvents) >= 10 {
			break
		}
		event := &result.StackEvents[i]
		if event.ResourceStatus == types.ResourceStatusCreateFailed ||
			event.ResourceStatus == types.ResourceStatusUpdateFailed ||
			event.ResourceStatus == types.ResourceStatusDeleteFailed {
			recentEvents = append(recentEvents, *event)
		}
	}

	return recentEvents, nil
}

// PhysicalID returns the physical id of a resource of a stack.
func (s *StackService) PhysicalID(ctx context.Context, stackName, logicalID string) (string, error) {
	result, err := s.client.DescribeStackResource(ctx, &cloudformation.DescribeStackResourceInput{
		StackName:         aws.String(stackName),
		LogicalResourceId: aws.String(logicalID),
	})
	if err != nil {
		if isNotFound(err) {
			return "", fmt.Errorf("%w: %s/%s", errs.ErrStackNotFound, stackName, logicalID)
		}
		return "", fmt.Errorf("failed to describe resource %s of stack %s: %w", logicalID, stackName, err)
	}
	if result.StackResourceDetail == nil {
		return "", fmt.Errorf("%w: %s/%s", errs.ErrStackNotFound, stackName, logicalID)
	}
	return aws.ToString(result.StackResourceDetail.PhysicalResourceId), nil
}
