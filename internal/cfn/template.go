// Package cfn wraps goformation templates with the checks a front stack
// needs: unique alphanumeric logical ids, resolved references, and a stable
// rendering that can be hashed.
package cfn

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/awslabs/goformation/v7/cloudformation"
	"github.com/awslabs/goformation/v7/cloudformation/policies"
	"gopkg.in/yaml.v3"
)

const FormatVersion = "2010-09-09"

// MaxTemplateBodySize is the largest template CloudFormation accepts inline.
// Larger templates must be staged in S3 and passed by URL.
const MaxTemplateBodySize = 51200

// Deletion policies.
const (
	PolicyDelete = policies.DeletionPolicy("Delete")
	PolicyRetain = policies.DeletionPolicy("Retain")
)

// ReplacePolicy returns the UpdateReplacePolicy matching a deletion policy.
func ReplacePolicy(p policies.DeletionPolicy) policies.UpdateReplacePolicy {
	return policies.UpdateReplacePolicy(p)
}

// Template is a CloudFormation template.
type Template struct {
	*cloudformation.Template
}

// New returns an empty template.
func New(description string) *Template {
	t := cloudformation.NewTemplate()
	t.AWSTemplateFormatVersion = FormatVersion
	t.Description = description
	return &Template{Template: t}
}

// AddResource registers r under logicalID. Logical ids are unique across
// parameters and resources of a template.
func (t *Template) AddResource(logicalID string, r cloudformation.Resource) error {
	if err := t.claim(logicalID); err != nil {
		return err
	}
	t.Resources[logicalID] = r
	return nil
}

func (t *Template) AddParameter(logicalID string, p cloudformation.Parameter) error {
	if err := t.claim(logicalID); err != nil {
		return err
	}
	t.Parameters[logicalID] = p
	return nil
}

func (t *Template) AddOutput(logicalID string, o cloudformation.Output) error {
	if _, ok := t.Outputs[logicalID]; ok {
		return fmt.Errorf("duplicate output %s", logicalID)
	}
	t.Outputs[logicalID] = o
	return nil
}

// Has reports whether logicalID names a parameter or a resource.
func (t *Template) Has(logicalID string) bool {
	_, isResource := t.Resources[logicalID]
	_, isParameter := t.Parameters[logicalID]
	return isResource || isParameter
}

func (t *Template) claim(logicalID string) error {
	if !isAlphanumeric(logicalID) {
		return fmt.Errorf("logical id %q must be alphanumeric", logicalID)
	}
	if t.Has(logicalID) {
		return fmt.Errorf("duplicate logical id %s", logicalID)
	}
	return nil
}

func isAlphanumeric(s string) bool {
	if s == "" || len(s) > 255 {
		return false
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// JSON renders the template with its intrinsic functions expanded. Map keys
// are sorted so the same template always renders to the same bytes.
func (t *Template) JSON() ([]byte, error) {
	data, err := t.Template.JSON()
	if err != nil {
		return nil, fmt.Errorf("failed to render template as JSON: %w", err)
	}
	return data, nil
}

// Map returns the generic JSON form of the template, as consumed by policy
// evaluation.
func (t *Template) Map() (map[string]any, error) {
	data, err := t.JSON()
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode rendered template: %w", err)
	}
	return m, nil
}

// YAML renders the expanded template as YAML.
func (t *Template) YAML() ([]byte, error) {
	m, err := t.Map()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(m); err != nil {
		return nil, fmt.Errorf("failed to render template as YAML: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("failed to render template as YAML: %w", err)
	}
	return buf.Bytes(), nil
}

// SHA256 returns the hex digest of the JSON rendering.
func (t *Template) SHA256() (string, error) {
	data, err := t.JSON()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Validate checks that every Ref, Fn::GetAtt, Fn::Sub reference and
// DependsOn entry resolves to a parameter, a resource or a pseudo parameter.
func (t *Template) Validate() error {
	m, err := t.Map()
	if err != nil {
		return err
	}

	known := func(id string) bool {
		return strings.HasPrefix(id, "AWS::") || t.Has(id)
	}

	dangling := map[string]struct{}{}
	walkReferences(m["Resources"], func(id string) {
		if !known(id) {
			dangling[id] = struct{}{}
		}
	})
	walkReferences(m["Outputs"], func(id string) {
		if !known(id) {
			dangling[id] = struct{}{}
		}
	})

	resources, _ := m["Resources"].(map[string]any)
	for _, r := range resources {
		node, _ := r.(map[string]any)
		deps, _ := node["DependsOn"].([]any)
		for _, dep := range deps {
			id, _ := dep.(string)
			if _, ok := t.Resources[id]; !ok {
				dangling[id] = struct{}{}
			}
		}
	}

	if len(dangling) > 0 {
		return fmt.Errorf("template has dangling references: %s", strings.Join(slices.Sorted(maps.Keys(dangling)), ", "))
	}
	return nil
}

func walkReferences(v any, fn func(id string)) {
	switch node := v.(type) {
	case map[string]any:
		if ref, ok := node["Ref"].(string); ok && len(node) == 1 {
			fn(ref)
			return
		}
		if att, ok := node["Fn::GetAtt"].([]any); ok && len(node) == 1 && len(att) == 2 {
			if id, ok := att[0].(string); ok {
				fn(id)
			}
			return
		}
		if sub, ok := node["Fn::Sub"].(string); ok && len(node) == 1 {
			for _, id := range referencesIn(sub) {
				fn(id)
			}
			return
		}
		for _, child := range node {
			walkReferences(child, fn)
		}
	case []any:
		for _, child := range node {
			walkReferences(child, fn)
		}
	}
}
