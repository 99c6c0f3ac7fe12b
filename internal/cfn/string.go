package cfn

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/awslabs/goformation/v7/cloudformation"
)

// Pseudo parameters resolved by CloudFormation at deploy time.
var (
	AccountID = Ref("AWS::AccountId")
	Partition = Ref("AWS::Partition")
	Region    = Ref("AWS::Region")
	StackName = Ref("AWS::StackName")
)

var reference = regexp.MustCompile(`\$\{([^!}][^}]*)\}`)

// String is a template value that may embed references to other resources.
// Non-literal text uses Fn::Sub syntax: ${LogicalId} for a resource's Ref
// value and ${LogicalId.Attribute} for one of its attributes.
type String struct {
	text    string
	literal bool
}

// Literal returns a String rendered verbatim, even if it contains ${...}.
func Literal(s string) String {
	return String{text: s, literal: true}
}

// Ref returns the Ref value of a resource, parameter or pseudo parameter.
func Ref(logicalID string) String {
	return String{text: "${" + logicalID + "}"}
}

// GetAtt returns an attribute of a resource.
func GetAtt(logicalID, attribute string) String {
	return String{text: "${" + logicalID + "." + attribute + "}"}
}

// Sub returns a String from raw Fn::Sub text.
func Sub(text string) String {
	return String{text: text}
}

// Join concatenates parts into a single String. Literal parts are escaped so
// they survive substitution unchanged.
func Join(parts ...String) String {
	var (
		b       strings.Builder
		literal = true
	)
	for _, p := range parts {
		if !p.literal {
			literal = false
		}
	}
	for _, p := range parts {
		if p.literal && !literal {
			b.WriteString(strings.ReplaceAll(p.text, "${", "${!"))
			continue
		}
		b.WriteString(p.text)
	}
	return String{text: b.String(), literal: literal}
}

// String returns the text of s in Fn::Sub syntax.
func (s String) String() string {
	return s.text
}

// IsLiteral reports whether s contains no references.
func (s String) IsLiteral() bool {
	return s.literal || !reference.MatchString(s.text)
}

// IsZero reports whether s is empty.
func (s String) IsZero() bool {
	return s.text == ""
}

// References returns the logical ids s refers to, pseudo parameters included.
func (s String) References() []string {
	if s.literal {
		return nil
	}
	return referencesIn(s.text)
}

func referencesIn(text string) []string {
	var ids []string
	for _, m := range reference.FindAllStringSubmatch(text, -1) {
		id, _, _ := strings.Cut(m[1], ".")
		ids = append(ids, id)
	}
	return ids
}

// Value returns s as a goformation value: the plain text for literals, or an
// encoded Ref, Fn::GetAtt or Fn::Sub that the template expands on render.
func (s String) Value() string {
	if s.IsLiteral() {
		return s.text
	}

	if m := reference.FindStringSubmatchIndex(s.text); m != nil && m[0] == 0 && m[1] == len(s.text) {
		inner := s.text[2 : len(s.text)-1]
		if id, attr, ok := strings.Cut(inner, "."); ok {
			return cloudformation.GetAtt(id, attr)
		}
		return cloudformation.Ref(inner)
	}

	return cloudformation.Sub(s.text)
}

// Ptr returns Value as a pointer, for optional resource properties.
func (s String) Ptr() *string {
	return cloudformation.String(s.Value())
}

func (s String) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Value())
}

// Values renders each of ss.
func Values(ss ...String) []string {
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		out = append(out, s.Value())
	}
	return out
}
