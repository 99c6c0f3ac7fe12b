package synth

import (
	"fmt"

	"github.com/awslabs/goformation/v7/cloudformation"
	"github.com/awslabs/goformation/v7/cloudformation/codepipeline"
	"github.com/awslabs/goformation/v7/cloudformation/events"
	"github.com/savaki/front-deployer/internal/cfn"
	"github.com/savaki/front-deployer/internal/topology"
)

func pipelineRoleID(front *topology.Topology) string {
	return front.Pipeline.LogicalID + "Role"
}

// pipelineArn is the ARN of the pipeline, used by the source trigger.
func pipelineArn(front *topology.Topology) cfn.String {
	return cfn.Join(
		cfn.Literal("arn:"), cfn.Partition, cfn.Literal(":codepipeline:"), cfn.Region, cfn.Literal(":"), cfn.AccountID,
		cfn.Literal(":"), cfn.Ref(front.Pipeline.LogicalID),
	)
}

func (b *builder) pipeline() {
	front := b.front

	projectArns := make([]cfn.String, 0, 3)
	for _, p := range front.Projects() {
		projectArns = append(projectArns, cfn.GetAtt(p.LogicalID, "Arn"))
	}

	policyID := b.role(pipelineRoleID(front), "codepipeline.amazonaws.com",
		artifactAccess(front),
		cfn.Statement{
			Effect: "Allow",
			Action: []string{
				"codecommit:GetBranch",
				"codecommit:GetCommit",
				"codecommit:UploadArchive",
				"codecommit:GetUploadArchiveStatus",
				"codecommit:CancelUploadArchive",
			},
			Resource: []cfn.String{cfn.GetAtt(front.Repository.LogicalID, "Arn")},
		},
		cfn.Statement{
			Effect:   "Allow",
			Action:   []string{"codebuild:BatchGetBuilds", "codebuild:StartBuild", "codebuild:StopBuild"},
			Resource: projectArns,
		},
		cfn.Statement{
			Effect:   "Allow",
			Action:   []string{"s3:PutObject", "s3:PutObjectAcl", "s3:GetBucket*", "s3:List*"},
			Resource: []cfn.String{front.Bucket.Arn(), front.Bucket.Objects()},
		},
	)

	stages := make([]codepipeline.Pipeline_StageDeclaration, 0, len(front.Pipeline.Stages))
	for _, stage := range front.Pipeline.Stages {
		actions := make([]codepipeline.Pipeline_ActionDeclaration, 0, len(stage.Actions))
		for _, action := range stage.Actions {
			a, err := b.action(action)
			if err != nil {
				b.err = err
				return
			}
			actions = append(actions, a)
		}
		stages = append(stages, codepipeline.Pipeline_StageDeclaration{
			Name:    stage.Name,
			Actions: actions,
		})
	}

	b.add(front.Pipeline.LogicalID, &codepipeline.Pipeline{
		Name:    cloudformation.String(front.Pipeline.Name),
		RoleArn: cfn.GetAtt(pipelineRoleID(front), "Arn").Value(),
		ArtifactStore: &codepipeline.Pipeline_ArtifactStore{
			Type:     "S3",
			Location: cfn.Ref(ArtifactStoreID(front)).Value(),
		},
		Stages:                     stages,
		AWSCloudFormationDependsOn: []string{policyID},
	})
}

func (b *builder) action(action topology.Action) (codepipeline.Pipeline_ActionDeclaration, error) {
	var configuration map[string]any
	switch action.Provider {
	case topology.ProviderCodeCommit:
		configuration = map[string]any{
			"RepositoryName":       cfn.GetAtt(action.Target, "Name"),
			"BranchName":           b.front.Pipeline.Branch,
			"PollForSourceChanges": false,
		}
	case topology.ProviderCodeBuild:
		configuration = map[string]any{
			"ProjectName": cfn.Ref(action.Target),
		}
	case topology.ProviderS3:
		configuration = map[string]any{
			"BucketName": cfn.Ref(action.Target),
			"Extract":    "true",
		}
	default:
		return codepipeline.Pipeline_ActionDeclaration{}, fmt.Errorf("action %s: unsupported provider %q", action.Name, action.Provider)
	}

	a := codepipeline.Pipeline_ActionDeclaration{
		Name: action.Name,
		ActionTypeId: &codepipeline.Pipeline_ActionTypeId{
			Category: action.Provider.Category(),
			Owner:    "AWS",
			Provider: string(action.Provider),
			Version:  "1",
		},
		Configuration: configuration,
		RunOrder:      cloudformation.Int(action.RunOrder),
	}
	for _, artifact := range action.Inputs {
		a.InputArtifacts = append(a.InputArtifacts, codepipeline.Pipeline_InputArtifact{Name: artifact.Name})
	}
	for _, artifact := range action.Outputs {
		a.OutputArtifacts = append(a.OutputArtifacts, codepipeline.Pipeline_OutputArtifact{Name: artifact.Name})
	}
	return a, nil
}

// sourceTrigger starts the pipeline when the tracked branch changes, since
// the source action does not poll.
func (b *builder) sourceTrigger() {
	front := b.front
	roleID := front.Pipeline.LogicalID + "EventsRole"

	b.role(roleID, "events.amazonaws.com", cfn.Statement{
		Effect:   "Allow",
		Action:   []string{"codepipeline:StartPipelineExecution"},
		Resource: []cfn.String{pipelineArn(front)},
	})

	b.add(front.Repository.LogicalID+"EventRule", &events.Rule{
		EventPattern: map[string]any{
			"source":      []string{"aws.codecommit"},
			"resources":   []cfn.String{cfn.GetAtt(front.Repository.LogicalID, "Arn")},
			"detail-type": []string{"CodeCommit Repository State Change"},
			"detail": map[string]any{
				"event":         []string{"referenceCreated", "referenceUpdated"},
				"referenceName": []string{front.Pipeline.Branch},
			},
		},
		State: cloudformation.String("ENABLED"),
		Targets: []events.Rule_Target{
			{
				Arn:     pipelineArn(front).Value(),
				Id:      "Target0",
				RoleArn: cfn.GetAtt(roleID, "Arn").Ptr(),
			},
		},
	})
}
