package models

// DeployRequest is the event accepted by the deploy-front Lambda.
type DeployRequest struct {
	Env    string `json:"env"`              // Environment name (dev, staging, prod)
	Front  string `json:"front"`            // Front name; empty deploys every configured front
	Branch string `json:"branch,omitempty"` // Overrides the tracked branch
	DryRun bool   `json:"dry_run,omitempty"`
}

// DeployResponse is returned by the deploy-front Lambda.
type DeployResponse struct {
	Results []DeployResult `json:"results"`
	Errors  []string       `json:"errors,omitempty"`
}

// DeployResult summarizes the deployment of one front.
type DeployResult struct {
	Front              string `json:"front"`
	StackName          string `json:"stack_name"`
	Status             string `json:"status"`
	Operation          string `json:"operation,omitempty"`
	DistributionDomain string `json:"distribution_domain,omitempty"`
}
