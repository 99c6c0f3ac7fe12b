package cfn

import (
	"encoding/json"
	"testing"

	"github.com/awslabs/goformation/v7/cloudformation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// render returns s as it appears in a rendered template.
func render(t *testing.T, s String) any {
	t.Helper()

	tmpl := New("render")
	require.NoError(t, tmpl.AddOutput("Value", cloudformation.Output{Value: s.Value()}))

	m, err := tmpl.Map()
	require.NoError(t, err)
	return m["Outputs"].(map[string]any)["Value"].(map[string]any)["Value"]
}

func TestString_Value(t *testing.T) {
	tests := []struct {
		name string
		in   String
		want any
	}{
		{name: "literal", in: Literal("index.html"), want: "index.html"},
		{name: "literal keeps placeholders", in: Literal("s3://${BUCKET_NAME}"), want: "s3://${BUCKET_NAME}"},
		{name: "ref", in: Ref("FrontBucket"), want: map[string]any{"Ref": "FrontBucket"}},
		{name: "pseudo parameter", in: Region, want: map[string]any{"Ref": "AWS::Region"}},
		{name: "get att", in: GetAtt("FrontBucket", "Arn"), want: map[string]any{"Fn::GetAtt": []any{"FrontBucket", "Arn"}}},
		{name: "sub", in: Sub("${FrontBucket.Arn}/*"), want: map[string]any{"Fn::Sub": "${FrontBucket.Arn}/*"}},
		{name: "sub without references", in: Sub("plain"), want: "plain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, render(t, tt.in))
		})
	}
}

func TestJoin(t *testing.T) {
	t.Run("literal parts stay literal", func(t *testing.T) {
		s := Join(Literal("arn:aws:s3:::"), Literal("bucket"))
		assert.True(t, s.IsLiteral())
		assert.Equal(t, "arn:aws:s3:::bucket", s.Value())
	})

	t.Run("mixed parts become a sub", func(t *testing.T) {
		s := Join(Literal("arn:"), Partition, Literal(":cloudfront::"), AccountID, Literal(":distribution/"), Ref("FrontDistribution"))
		assert.Equal(t, "arn:${AWS::Partition}:cloudfront::${AWS::AccountId}:distribution/${FrontDistribution}", s.String())
		assert.Equal(t, []string{"AWS::Partition", "AWS::AccountId", "FrontDistribution"}, s.References())
		assert.Equal(t, map[string]any{"Fn::Sub": s.String()}, render(t, s))
	})

	t.Run("literal placeholders are escaped", func(t *testing.T) {
		s := Join(Literal("s3://${BUCKET_NAME}/"), Ref("FrontBucket"))
		assert.Equal(t, "s3://${!BUCKET_NAME}/${FrontBucket}", s.String())
		assert.Equal(t, []string{"FrontBucket"}, s.References())
	})
}

func TestString_PolicyDocument(t *testing.T) {
	doc := NewPolicyDocument(Statement{
		Effect:   "Allow",
		Action:   []string{"s3:GetObject"},
		Resource: []String{GetAtt("FrontBucket", "Arn"), Literal("*")},
	})

	tmpl := New("policy")
	require.NoError(t, tmpl.AddOutput("Doc", cloudformation.Output{Value: doc}))

	data, err := tmpl.JSON()
	require.NoError(t, err)

	var m struct {
		Outputs map[string]struct {
			Value json.RawMessage
		}
	}
	require.NoError(t, json.Unmarshal(data, &m))
	assert.JSONEq(t, `{
		"Version": "2012-10-17",
		"Statement": [{
			"Effect": "Allow",
			"Action": ["s3:GetObject"],
			"Resource": [{"Fn::GetAtt": ["FrontBucket", "Arn"]}, "*"]
		}]
	}`, string(m.Outputs["Doc"].Value))
}

func TestString_IsZero(t *testing.T) {
	var s String
	assert.True(t, s.IsZero())
	assert.False(t, Literal("x").IsZero())
	assert.Empty(t, Literal("${X}").References())
	assert.Equal(t, []string{"a", "b"}, Values(Literal("a"), Literal("b")))
}
