package utils

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/stretchr/testify/assert"
)

func keyValues(params []types.Parameter) [][2]string {
	var kv [][2]string
	for _, p := range params {
		kv = append(kv, [2]string{aws.ToString(p.ParameterKey), aws.ToString(p.ParameterValue)})
	}
	return kv
}

func TestMergeParameters(t *testing.T) {
	tests := []struct {
		name   string
		inputs []map[string]string
		want   [][2]string
	}{
		{
			name:   "single map",
			inputs: []map[string]string{{"BuildImage": "aws/codebuild/standard:7.0"}},
			want:   [][2]string{{"BuildImage", "aws/codebuild/standard:7.0"}},
		},
		{
			name: "later map wins, sorted by key",
			inputs: []map[string]string{
				{"BuildImage": "aws/codebuild/standard:5.0", "Branch": "master"},
				{"BuildImage": "aws/codebuild/standard:7.0"},
			},
			want: [][2]string{
				{"Branch", "master"},
				{"BuildImage", "aws/codebuild/standard:7.0"},
			},
		},
		{
			name: "empty value falls back to template default",
			inputs: []map[string]string{
				{"BuildImage": "aws/codebuild/standard:5.0"},
				{"BuildImage": ""},
			},
		},
		{
			name: "no maps",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, keyValues(MergeParameters(tt.inputs...)))
		})
	}
}
