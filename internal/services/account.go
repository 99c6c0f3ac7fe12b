package services

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/arn"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// STSAPI is the subset of the STS client used by AccountService.
type STSAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// Account identifies the account stacks are deployed to.
type Account struct {
	ID        string `json:"id"`
	Partition string `json:"partition"`
}

type AccountService struct {
	client STSAPI
}

func NewAccountService(client STSAPI) *AccountService {
	return &AccountService{client: client}
}

// Resolve returns the account and partition of the calling identity.
func (a *AccountService) Resolve(ctx context.Context) (*Account, error) {
	result, err := a.client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to get caller identity: %w", err)
	}

	caller, err := arn.Parse(aws.ToString(result.Arn))
	if err != nil {
		return nil, fmt.Errorf("failed to parse caller arn: %w", err)
	}

	return &Account{
		ID:        aws.ToString(result.Account),
		Partition: caller.Partition,
	}, nil
}
