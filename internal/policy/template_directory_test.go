package policy

import (
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

// TestValidTemplateDirectory tests all CloudFormation templates in the valid directory
// Each template should pass policy validation
func TestValidTemplateDirectory(t *testing.T) {
	validator, err := NewValidator()
	if err != nil {
		t.Fatalf("Failed to create validator: %v", err)
	}

	validDir := "testdata/valid"
	templates, err := discoverTemplateFiles(validDir)
	if err != nil {
		t.Fatalf("Failed to discover template files in %s: %v", validDir, err)
	}

	if len(templates) == 0 {
		t.Fatalf("No template files found in %s", validDir)
	}

	for _, templatePath := range templates {
		t.Run(filepath.Base(templatePath), func(t *testing.T) {
			testTemplateValidation(t, validator, templatePath, []string{"Front"}, true)
		})
	}
}

// TestInvalidTemplateDirectory tests all CloudFormation templates in the invalid directory
// Each template should fail policy validation
func TestInvalidTemplateDirectory(t *testing.T) {
	validator, err := NewValidator()
	if err != nil {
		t.Fatalf("Failed to create validator: %v", err)
	}

	invalidDir := "testdata/invalid"
	templates, err := discoverTemplateFiles(invalidDir)
	if err != nil {
		t.Fatalf("Failed to discover template files in %s: %v", invalidDir, err)
	}

	if len(templates) == 0 {
		t.Fatalf("No template files found in %s", invalidDir)
	}

	for _, templatePath := range templates {
		t.Run(filepath.Base(templatePath), func(t *testing.T) {
			testTemplateValidation(t, validator, templatePath, nil, false)
		})
	}
}

// TestValidTemplatesWithOtherFronts shows that logical ids are checked against
// the fronts being deployed
func TestValidTemplatesWithOtherFronts(t *testing.T) {
	validator, err := NewValidator()
	if err != nil {
		t.Fatalf("Failed to create validator: %v", err)
	}

	templates, err := discoverTemplateFiles("testdata/valid")
	if err != nil {
		t.Fatalf("Failed to discover template files: %v", err)
	}

	cases := []struct {
		fronts     []string
		shouldPass bool
	}{
		{fronts: nil, shouldPass: true},
		{fronts: []string{"Front"}, shouldPass: true},
		{fronts: []string{"Admin", "Front"}, shouldPass: true},
		{fronts: []string{"Admin"}, shouldPass: false},
	}

	for _, template := range templates {
		for _, c := range cases {
			name := filepath.Base(template) + "_" + strings.Join(c.fronts, "+")
			t.Run(name, func(t *testing.T) {
				testTemplateValidation(t, validator, template, c.fronts, c.shouldPass)
			})
		}
	}
}

// TestSpecificInvalidScenarios tests specific invalid scenarios with detailed assertions
func TestSpecificInvalidScenarios(t *testing.T) {
	validator, err := NewValidator()
	if err != nil {
		t.Fatalf("Failed to create validator: %v", err)
	}

	testCases := []struct {
		templateFile       string
		expectedViolations []string
	}{
		{
			templateFile: "testdata/invalid/wildcard-invalidation.yaml",
			expectedViolations: []string{
				"Policy 'FrontInvalidateProjectRolePolicy' grants cloudfront:CreateInvalidation on ",
			},
		},
		{
			templateFile: "testdata/invalid/widened-bucket-policy.yaml",
			expectedViolations: []string{
				"Bucket policy 'FrontBucketPolicy' grants 's3:PutObject'; only s3:GetObject is allowed",
			},
		},
		{
			templateFile: "testdata/invalid/public-bucket-policy.yaml",
			expectedViolations: []string{
				"Bucket policy 'FrontBucketPolicy' must grant a CloudFront origin identity",
				"Policy 'FrontBucketPolicy' grants access to every resource",
			},
		},
		{
			templateFile: "testdata/invalid/distribution-without-policy.yaml",
			expectedViolations: []string{
				"Distribution 'FrontDistribution' must depend on its bucket policy",
			},
		},
		{
			templateFile: "testdata/invalid/invalidate-before-deploy.yaml",
			expectedViolations: []string{
				"Pipeline 'FrontPipeline' runs 'InvalidateCache' before 'S3Deploy' completes",
			},
		},
		{
			templateFile: "testdata/invalid/disallowed-resource.yaml",
			expectedViolations: []string{
				"Resource type 'AWS::EC2::Instance' is not allowed",
			},
		},
	}

	for _, tc := range testCases {
		templateName := filepath.Base(tc.templateFile)
		t.Run(templateName, func(t *testing.T) {
			template, err := loadTemplate(tc.templateFile)
			if err != nil {
				t.Fatalf("Failed to load template %s: %v", tc.templateFile, err)
			}

			result, err := validator.ValidateTemplate(context.Background(), template)
			if err != nil {
				t.Fatalf("Validation failed with error: %v", err)
			}

			if result.Allowed {
				t.Errorf("Template %s should have failed validation but was allowed", templateName)
			}

			for _, expected := range tc.expectedViolations {
				found := false
				for _, v := range result.Violations {
					if strings.HasPrefix(v, expected) {
						found = true
					}
				}
				if !found {
					t.Errorf("Expected violation '%s' not found in %v", expected, result.Violations)
				}
			}
		})
	}
}

// discoverTemplateFiles recursively finds all .template and .yaml files in the specified directory
func discoverTemplateFiles(dir string) ([]string, error) {
	var templateFiles []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() && (strings.HasSuffix(path, ".template") || strings.HasSuffix(path, ".yaml")) {
			templateFiles = append(templateFiles, path)
		}

		return nil
	})

	return templateFiles, err
}

func testTemplateValidation(t *testing.T, validator *Validator, templatePath string, fronts []string, shouldPass bool) {
	template, err := loadTemplate(templatePath)
	if err != nil {
		t.Fatalf("Failed to load template %s: %v", templatePath, err)
	}

	result, err := validator.ValidateTemplate(context.Background(), template, fronts...)
	if err != nil {
		t.Fatalf("Validation failed with error: %v", err)
	}

	templateName := filepath.Base(templatePath)

	if shouldPass && !result.Allowed {
		t.Errorf("Template %s should have passed validation but failed with violations: %v",
			templateName, result.Violations)
	}
	if !shouldPass && result.Allowed {
		t.Errorf("Template %s should have failed validation but passed", templateName)
	}
}

// loadTemplate loads and parses a CloudFormation template from a file (supports both JSON and YAML)
func loadTemplate(templatePath string) (map[string]any, error) {
	content, err := os.ReadFile(templatePath)
	if err != nil {
		return nil, err
	}

	var template map[string]any
	if strings.HasSuffix(templatePath, ".yaml") || strings.HasSuffix(templatePath, ".yml") {
		err = yaml.Unmarshal(content, &template)
	} else {
		err = json.Unmarshal(content, &template)
	}
	if err != nil {
		return nil, err
	}

	return template, nil
}
