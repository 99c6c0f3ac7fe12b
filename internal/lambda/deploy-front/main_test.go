package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/savaki/front-deployer/internal/config"
	errs "github.com/savaki/front-deployer/internal/errors"
	"github.com/savaki/front-deployer/internal/models"
	"github.com/savaki/front-deployer/internal/orchestrator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDeployer struct {
	fronts []config.Front
	opts   orchestrator.DeployOptions
	fail   string
}

func (f *fakeDeployer) DeployAll(_ context.Context, fronts []config.Front, opts orchestrator.DeployOptions, _ int) ([]*orchestrator.Result, error) {
	f.fronts = fronts
	f.opts = opts

	var (
		results = make([]*orchestrator.Result, len(fronts))
		failed  []error
	)
	for i, front := range fronts {
		if front.Name == f.fail {
			failed = append(failed, fmt.Errorf("%s: %w", front.Name, errs.ErrStackFailed))
			continue
		}
		results[i] = &orchestrator.Result{
			Front:              front.Name,
			StackName:          "dev-" + front.Name,
			Status:             "SUCCESS",
			Operation:          "CREATE",
			DistributionDomain: "d123.cloudfront.net",
		}
	}
	return results, errors.Join(failed...)
}

func newTestHandler(t *testing.T, deployer *fakeDeployer) *Handler {
	fronts, err := config.Parse([]byte("fronts:\n  - name: Front\n  - name: Admin\n    branch: release\n"))
	require.NoError(t, err)
	return &Handler{env: "dev", fronts: fronts, deployer: deployer}
}

func TestHandleDeploy(t *testing.T) {
	ctx := context.Background()

	t.Run("all fronts", func(t *testing.T) {
		deployer := &fakeDeployer{}
		resp, err := newTestHandler(t, deployer).HandleDeploy(ctx, &models.DeployRequest{Env: "dev"})
		require.NoError(t, err)
		require.Len(t, resp.Results, 2)
		assert.Equal(t, "dev-Front", resp.Results[0].StackName)
		assert.Equal(t, "d123.cloudfront.net", resp.Results[1].DistributionDomain)
		assert.True(t, deployer.opts.Wait)
		assert.False(t, deployer.opts.DryRun)
	})

	t.Run("single front with branch", func(t *testing.T) {
		deployer := &fakeDeployer{}
		_, err := newTestHandler(t, deployer).HandleDeploy(ctx, &models.DeployRequest{Front: "Admin", Branch: "hotfix", DryRun: true})
		require.NoError(t, err)
		require.Len(t, deployer.fronts, 1)
		assert.Equal(t, "Admin", deployer.fronts[0].Name)
		assert.Equal(t, "hotfix", deployer.fronts[0].Branch)
		assert.True(t, deployer.opts.DryRun)
	})

	t.Run("unknown front", func(t *testing.T) {
		_, err := newTestHandler(t, &fakeDeployer{}).HandleDeploy(ctx, &models.DeployRequest{Front: "Blog"})
		assert.True(t, errors.Is(err, errs.ErrUnknownFront))
	})

	t.Run("wrong env", func(t *testing.T) {
		_, err := newTestHandler(t, &fakeDeployer{}).HandleDeploy(ctx, &models.DeployRequest{Env: "prod"})
		assert.Error(t, err)
	})

	t.Run("partial failure", func(t *testing.T) {
		resp, err := newTestHandler(t, &fakeDeployer{fail: "Admin"}).HandleDeploy(ctx, &models.DeployRequest{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errs.ErrStackFailed))
		require.Len(t, resp.Results, 1)
		assert.Equal(t, "Front", resp.Results[0].Front)
		require.Len(t, resp.Errors, 1)
		assert.Contains(t, resp.Errors[0], "Admin")
	})
}
