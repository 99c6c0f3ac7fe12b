package di

import (
	"github.com/savaki/front-deployer/internal/dao/frontdao"
	"github.com/savaki/front-deployer/internal/orchestrator"
	"github.com/savaki/front-deployer/internal/policy"
	"github.com/savaki/front-deployer/internal/services"
)

func ProvideValidator() (*policy.Validator, error) {
	return policy.NewValidator()
}

// ProvideSettings derives the environment defaults of every front from the
// application configuration.
func ProvideSettings(env string, config *services.Config) orchestrator.Settings {
	return orchestrator.DefaultSettings(orchestrator.Settings{
		Env:            env,
		AccountID:      config.AccountID,
		Branch:         config.Branch,
		BuildImage:     config.BuildImage,
		PriceClass:     config.PriceClass,
		TemplateBucket: config.TemplateBucket,
	})
}

func ProvideOrchestrator(
	settings orchestrator.Settings,
	stacks *services.StackService,
	buckets *services.BucketService,
	dao *frontdao.DAO,
	validator *policy.Validator,
	accounts *services.AccountService,
) *orchestrator.Orchestrator {
	return orchestrator.New(settings, stacks, buckets, dao, validator, accounts)
}
