package services

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/savaki/front-deployer/internal/constants"
)

// Config holds the deployer settings read from Parameter Store
type Config struct {
	TableName      string
	TemplateBucket string
	AccountID      string
	Branch         string
	BuildImage     string
	PriceClass     string
}

func (c *Config) setDefaults() {
	if c.Branch == "" {
		c.Branch = constants.DefaultBranch
	}
	if c.BuildImage == "" {
		c.BuildImage = constants.DefaultBuildImage
	}
}

// ParameterStore defines the interface for accessing configuration parameters
type ParameterStore interface {
	// GetParameter retrieves a single parameter by name
	GetParameter(ctx context.Context, name string) (string, error)

	// GetConfig loads all deployer configuration
	GetConfig(ctx context.Context) (*Config, error)
}

// SSMAPI is the subset of the SSM client used by SSMParameterStore.
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	GetParametersByPath(ctx context.Context, params *ssm.GetParametersByPathInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error)
}

// SSMParameterStore implements ParameterStore using AWS Systems Manager Parameter Store.
// Settings live under /<env>/front-deployer/.
type SSMParameterStore struct {
	client SSMAPI
	env    string
	mu     sync.RWMutex
	cache  map[string]string
}

// NewSSMParameterStore creates a new SSM-backed parameter store
func NewSSMParameterStore(client SSMAPI, env string) *SSMParameterStore {
	return &SSMParameterStore{
		client: client,
		env:    env,
		cache:  make(map[string]string),
	}
}

// Path returns the parameter path of the environment.
func (s *SSMParameterStore) Path() string {
	return fmt.Sprintf("/%s/%s", s.env, constants.ManagedByValue)
}

// GetParameter retrieves a single parameter from SSM Parameter Store
func (s *SSMParameterStore) GetParameter(ctx context.Context, name string) (string, error) {
	s.mu.RLock()
	if value, ok := s.cache[name]; ok {
		s.mu.RUnlock()
		return value, nil
	}
	s.mu.RUnlock()

	result, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: boolPtr(true),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get parameter %s: %w", name, err)
	}

	if result.Parameter == nil || result.Parameter.Value == nil {
		return "", fmt.Errorf("parameter %s not found", name)
	}

	value := *result.Parameter.Value

	s.mu.Lock()
	s.cache[name] = value
	s.mu.Unlock()

	return value, nil
}

// GetConfig loads all deployer configuration from Parameter Store
func (s *SSMParameterStore) GetConfig(ctx context.Context) (*Config, error) {
	path := s.Path()

	params := make(map[string]string)
	paginator := ssm.NewGetParametersByPathPaginator(s.client, &ssm.GetParametersByPathInput{
		Path:           &path,
		Recursive:      boolPtr(true),
		WithDecryption: boolPtr(true),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get parameters by path %s: %w", path, err)
		}
		for _, param := range page.Parameters {
			if param.Name != nil && param.Value != nil {
				params[*param.Name] = *param.Value
			}
		}
	}

	s.mu.Lock()
	for k, v := range params {
		s.cache[k] = v
	}
	s.mu.Unlock()

	get := func(name string) string {
		return params[path+"/"+name]
	}

	config := &Config{
		TableName:      get("table-name"),
		TemplateBucket: get("template-bucket"),
		AccountID:      get("account-id"),
		Branch:         get("branch"),
		BuildImage:     get("build-image"),
		PriceClass:     get("price-class"),
	}
	config.setDefaults()

	return config, nil
}

// EnvParameterStore implements ParameterStore using environment variables
// This is a NoOp implementation for local development without AWS connection
type EnvParameterStore struct {
	env string
}

// NewEnvParameterStore creates a new environment variable-backed parameter store
func NewEnvParameterStore(env string) *EnvParameterStore {
	return &EnvParameterStore{
		env: env,
	}
}

// GetParameter reads the environment variable matching the last segment of
// name: /dev/front-deployer/table-name reads TABLE_NAME.
func (e *EnvParameterStore) GetParameter(ctx context.Context, name string) (string, error) {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return os.Getenv(strings.ToUpper(strings.ReplaceAll(name, "-", "_"))), nil
}

// GetConfig loads all deployer configuration from environment variables
func (e *EnvParameterStore) GetConfig(ctx context.Context) (*Config, error) {
	config := &Config{
		TableName:      os.Getenv("TABLE_NAME"),
		TemplateBucket: os.Getenv("TEMPLATE_BUCKET"),
		AccountID:      os.Getenv("ACCOUNT_ID"),
		Branch:         os.Getenv("BRANCH"),
		BuildImage:     os.Getenv("BUILD_IMAGE"),
		PriceClass:     os.Getenv("PRICE_CLASS"),
	}
	config.setDefaults()

	return config, nil
}

func boolPtr(b bool) *bool {
	return &b
}
