package cfn

import (
	"testing"

	"github.com/awslabs/goformation/v7/cloudformation"
	"github.com/awslabs/goformation/v7/cloudformation/s3"
	"github.com/awslabs/goformation/v7/cloudformation/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func sampleTemplate(t *testing.T) *Template {
	t.Helper()

	tmpl := New("sample")
	require.NoError(t, tmpl.AddParameter("Topic", cloudformation.Parameter{Type: "String", Default: "deploys"}))
	require.NoError(t, tmpl.AddResource("Bucket", &s3.Bucket{
		AWSCloudFormationDeletionPolicy: PolicyDelete,
	}))
	require.NoError(t, tmpl.AddResource("Policy", &s3.BucketPolicy{
		Bucket: Ref("Bucket").Value(),
		PolicyDocument: NewPolicyDocument(Statement{
			Effect:   "Allow",
			Action:   []string{"s3:GetObject"},
			Resource: []String{Join(GetAtt("Bucket", "Arn"), Literal("/*"))},
		}),
	}))
	require.NoError(t, tmpl.AddResource("Notifications", &sns.Topic{
		TopicName:                  Ref("Topic").Ptr(),
		AWSCloudFormationDependsOn: []string{"Policy"},
	}))
	require.NoError(t, tmpl.AddOutput("BucketArn", cloudformation.Output{Value: GetAtt("Bucket", "Arn").Value()}))
	return tmpl
}

func TestTemplate_Claim(t *testing.T) {
	tmpl := sampleTemplate(t)

	assert.Error(t, tmpl.AddResource("Bucket", &s3.Bucket{}))
	assert.Error(t, tmpl.AddResource("Topic", &s3.Bucket{}))
	assert.Error(t, tmpl.AddParameter("Bucket", cloudformation.Parameter{Type: "String"}))
	assert.Error(t, tmpl.AddResource("my-bucket", &s3.Bucket{}))
	assert.Error(t, tmpl.AddResource("", &s3.Bucket{}))
	assert.Error(t, tmpl.AddOutput("BucketArn", cloudformation.Output{Value: "x"}))
	assert.True(t, tmpl.Has("Topic"))
	assert.False(t, tmpl.Has("BucketArn"))
}

func TestTemplate_Validate(t *testing.T) {
	t.Run("resolved", func(t *testing.T) {
		assert.NoError(t, sampleTemplate(t).Validate())
	})

	t.Run("dangling ref", func(t *testing.T) {
		tmpl := sampleTemplate(t)
		tmpl.Resources["Other"] = &sns.Topic{TopicName: Ref("Nope").Ptr()}
		err := tmpl.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Nope")
	})

	t.Run("dangling sub", func(t *testing.T) {
		tmpl := sampleTemplate(t)
		tmpl.Outputs["Missing"] = cloudformation.Output{Value: Sub("${Gone.Arn}/*").Value()}
		err := tmpl.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Gone")
	})

	t.Run("dangling depends on", func(t *testing.T) {
		tmpl := sampleTemplate(t)
		tmpl.Resources["Other"] = &s3.Bucket{AWSCloudFormationDependsOn: []string{"Topic"}}
		assert.Error(t, tmpl.Validate())
	})
}

func TestTemplate_Render(t *testing.T) {
	tmpl := sampleTemplate(t)

	a, err := tmpl.JSON()
	require.NoError(t, err)
	b, err := tmpl.JSON()
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))

	sumA, err := tmpl.SHA256()
	require.NoError(t, err)
	assert.Len(t, sumA, 64)

	tmpl.Description = "changed"
	sumB, err := tmpl.SHA256()
	require.NoError(t, err)
	assert.NotEqual(t, sumA, sumB)

	data, err := tmpl.YAML()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(data, &doc))
	assert.Equal(t, FormatVersion, doc["AWSTemplateFormatVersion"])

	resources := doc["Resources"].(map[string]any)
	bucket := resources["Bucket"].(map[string]any)
	assert.Equal(t, "AWS::S3::Bucket", bucket["Type"])
	assert.Equal(t, "Delete", bucket["DeletionPolicy"])

	topic := resources["Notifications"].(map[string]any)
	assert.Equal(t, map[string]any{"Ref": "Topic"}, topic["Properties"].(map[string]any)["TopicName"])
	assert.Equal(t, []any{"Policy"}, topic["DependsOn"])
}
