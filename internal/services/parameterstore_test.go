package services

import (
	"context"
	"maps"
	"slices"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSSM struct {
	params map[string]string
	gets   int
}

func (f *fakeSSM) GetParameter(_ context.Context, params *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.gets++
	v, ok := f.params[aws.ToString(params.Name)]
	if !ok {
		return &ssm.GetParameterOutput{}, nil
	}
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: params.Name, Value: aws.String(v)}}, nil
}

// GetParametersByPath returns one parameter per page.
func (f *fakeSSM) GetParametersByPath(_ context.Context, params *ssm.GetParametersByPathInput, _ ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error) {
	names := slices.Sorted(maps.Keys(f.params))

	start := 0
	if params.NextToken != nil {
		for i, name := range names {
			if name == *params.NextToken {
				start = i
			}
		}
	}
	if start >= len(names) {
		return &ssm.GetParametersByPathOutput{}, nil
	}

	out := &ssm.GetParametersByPathOutput{
		Parameters: []types.Parameter{{Name: aws.String(names[start]), Value: aws.String(f.params[names[start]])}},
	}
	if start+1 < len(names) {
		out.NextToken = aws.String(names[start+1])
	}
	return out, nil
}

func TestSSMParameterStore_GetConfig(t *testing.T) {
	fake := &fakeSSM{params: map[string]string{
		"/dev/front-deployer/table-name":      "dev-front-deployer",
		"/dev/front-deployer/template-bucket": "templates",
		"/dev/front-deployer/account-id":      "123456789012",
		"/dev/front-deployer/price-class":     "PriceClass_All",
	}}
	store := NewSSMParameterStore(fake, "dev")

	config, err := store.GetConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &Config{
		TableName:      "dev-front-deployer",
		TemplateBucket: "templates",
		AccountID:      "123456789012",
		Branch:         "master",
		BuildImage:     "aws/codebuild/standard:5.0",
		PriceClass:     "PriceClass_All",
	}, config)

	t.Run("cached", func(t *testing.T) {
		v, err := store.GetParameter(context.Background(), "/dev/front-deployer/table-name")
		require.NoError(t, err)
		assert.Equal(t, "dev-front-deployer", v)
		assert.Zero(t, fake.gets)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := store.GetParameter(context.Background(), "/dev/front-deployer/nope")
		assert.Error(t, err)
	})
}

func TestEnvParameterStore(t *testing.T) {
	t.Setenv("TABLE_NAME", "local-fronts")
	t.Setenv("BRANCH", "main")

	store := NewEnvParameterStore("dev")

	config, err := store.GetConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "local-fronts", config.TableName)
	assert.Equal(t, "main", config.Branch)
	assert.Equal(t, "aws/codebuild/standard:5.0", config.BuildImage)

	v, err := store.GetParameter(context.Background(), "/dev/front-deployer/table-name")
	require.NoError(t, err)
	assert.Equal(t, "local-fronts", v)
}

type fakeSTS struct {
	arn string
}

func (f fakeSTS) GetCallerIdentity(_ context.Context, _ *sts.GetCallerIdentityInput, _ ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	return &sts.GetCallerIdentityOutput{
		Account: aws.String("123456789012"),
		Arn:     aws.String(f.arn),
	}, nil
}

func TestAccountService_Resolve(t *testing.T) {
	tests := []struct {
		arn       string
		partition string
	}{
		{arn: "arn:aws:iam::123456789012:user/deployer", partition: "aws"},
		{arn: "arn:aws-cn:sts::123456789012:assumed-role/deployer/session", partition: "aws-cn"},
	}

	for _, tt := range tests {
		t.Run(tt.partition, func(t *testing.T) {
			account, err := NewAccountService(fakeSTS{arn: tt.arn}).Resolve(context.Background())
			require.NoError(t, err)
			assert.Equal(t, "123456789012", account.ID)
			assert.Equal(t, tt.partition, account.Partition)
		})
	}

	_, err := NewAccountService(fakeSTS{arn: "not-an-arn"}).Resolve(context.Background())
	assert.Error(t, err)
}
