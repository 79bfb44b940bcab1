package gemfile

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/git-pkgs/gemindex/internal/core"
)

const (
	tagSpecification = "!ruby/object:Gem::Specification"
	tagVersion       = "!ruby/object:Gem::Version"
	tagRequirement   = "!ruby/object:Gem::Requirement"
	tagDependency    = "!ruby/object:Gem::Dependency"

	dateLayout = "2006-01-02 15:04:05.000000000 Z"
)

type yamlSpec struct {
	Name                    string            `yaml:"name"`
	Version                 yamlVersion       `yaml:"version"`
	Platform                string            `yaml:"platform"`
	Authors                 []string          `yaml:"authors"`
	Date                    string            `yaml:"date"`
	Dependencies            []yamlDependency  `yaml:"dependencies"`
	Description             string            `yaml:"description"`
	Email                   yaml.Node         `yaml:"email"`
	Homepage                string            `yaml:"homepage"`
	Licenses                []string          `yaml:"licenses"`
	Metadata                map[string]string `yaml:"metadata"`
	RequirePaths            []string          `yaml:"require_paths"`
	RequiredRubyVersion     yamlRequirement   `yaml:"required_ruby_version"`
	RequiredRubygemsVersion yamlRequirement   `yaml:"required_rubygems_version"`
	RubygemsVersion         string            `yaml:"rubygems_version"`
	SpecificationVersion    int               `yaml:"specification_version"`
	Summary                 string            `yaml:"summary"`
}

type yamlVersion struct {
	Version string `yaml:"version"`
}

type yamlRequirement struct {
	Requirements [][]yaml.Node `yaml:"requirements"`
}

type yamlDependency struct {
	Name        string          `yaml:"name"`
	Requirement yamlRequirement `yaml:"requirement"`
	Type        string          `yaml:"type"`
}

// String renders the requirement as Gem::Requirement#to_s does.
func (r yamlRequirement) String() (string, error) {
	if len(r.Requirements) == 0 {
		return DefaultRequirement, nil
	}
	parts := make([]string, 0, len(r.Requirements))
	for _, pair := range r.Requirements {
		if len(pair) != 2 {
			return "", fmt.Errorf("requirement has %d elements, want 2", len(pair))
		}
		var v yamlVersion
		if err := pair[1].Decode(&v); err != nil {
			return "", fmt.Errorf("requirement version: %w", err)
		}
		parts = append(parts, pair[0].Value+" "+v.Version)
	}
	return strings.Join(parts, ", "), nil
}

func parseSpecYAML(data []byte) (*Spec, error) {
	var ys yamlSpec
	if err := yaml.Unmarshal(data, &ys); err != nil {
		return nil, err
	}

	spec := &Spec{
		Name:                 strings.TrimSpace(ys.Name),
		Version:              strings.TrimSpace(ys.Version.Version),
		Platform:             NormalizePlatform(ys.Platform),
		Summary:              ys.Summary,
		Description:          ys.Description,
		Homepage:             ys.Homepage,
		Authors:              ys.Authors,
		Licenses:             ys.Licenses,
		Metadata:             ys.Metadata,
		RequirePaths:         ys.RequirePaths,
		RubygemsVersion:      ys.RubygemsVersion,
		SpecificationVersion: ys.SpecificationVersion,
	}

	switch ys.Email.Kind {
	case yaml.ScalarNode:
		if ys.Email.ShortTag() != "!!null" && ys.Email.Value != "" {
			spec.Email = []string{ys.Email.Value}
		}
	case yaml.SequenceNode:
		if err := ys.Email.Decode(&spec.Email); err != nil {
			return nil, fmt.Errorf("email: %w", err)
		}
	}

	if ys.Date != "" {
		date, err := parseDate(ys.Date)
		if err != nil {
			return nil, err
		}
		spec.Date = date
	}

	var err error
	if spec.RequiredRubyVersion, err = ys.RequiredRubyVersion.String(); err != nil {
		return nil, fmt.Errorf("required_ruby_version: %w", err)
	}
	if spec.RequiredRubygemsVersion, err = ys.RequiredRubygemsVersion.String(); err != nil {
		return nil, fmt.Errorf("required_rubygems_version: %w", err)
	}

	for _, d := range ys.Dependencies {
		req, err := d.Requirement.String()
		if err != nil {
			return nil, fmt.Errorf("dependency %s: %w", d.Name, err)
		}
		scope := core.Runtime
		if strings.TrimPrefix(d.Type, ":") == string(core.Development) {
			scope = core.Development
		}
		spec.Dependencies = append(spec.Dependencies, core.Dependency{
			Name:         d.Name,
			Requirements: req,
			Scope:        scope,
		})
	}

	return spec, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{dateLayout, "2006-01-02 15:04:05 Z", time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// specYAML renders spec the way `gem build` writes metadata.
func specYAML(spec *Spec) ([]byte, error) {
	root := mapping(tagSpecification)
	add := func(key string, value *yaml.Node) {
		root.Content = append(root.Content, scalar(key), value)
	}

	add("name", scalar(spec.Name))
	add("version", versionNode(spec.Version))
	add("platform", scalar(NormalizePlatform(spec.Platform)))
	add("authors", stringSeq(spec.Authors))
	add("date", scalar(spec.Date.UTC().Format(dateLayout)))

	deps := &yaml.Node{Kind: yaml.SequenceNode}
	for _, d := range spec.Dependencies {
		req, err := requirementNode(d.Requirements)
		if err != nil {
			return nil, fmt.Errorf("dependency %s: %w", d.Name, err)
		}
		scope := d.Scope
		if scope == "" {
			scope = core.Runtime
		}
		dep := mapping(tagDependency)
		dep.Content = append(dep.Content,
			scalar("name"), scalar(d.Name),
			scalar("requirement"), req,
			scalar("type"), scalar(":"+string(scope)),
			scalar("prerelease"), &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: "false"},
		)
		deps.Content = append(deps.Content, dep)
	}
	add("dependencies", deps)
	add("description", scalar(spec.Description))
	add("email", stringSeq(spec.Email))
	add("homepage", scalar(spec.Homepage))
	add("licenses", stringSeq(spec.Licenses))

	meta := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range sortedKeys(spec.Metadata) {
		meta.Content = append(meta.Content, scalar(k), scalar(spec.Metadata[k]))
	}
	add("metadata", meta)

	requirePaths := spec.RequirePaths
	if len(requirePaths) == 0 {
		requirePaths = []string{"lib"}
	}
	add("require_paths", stringSeq(requirePaths))

	for _, field := range []struct {
		key string
		req string
	}{
		{"required_ruby_version", spec.RequiredRubyVersion},
		{"required_rubygems_version", spec.RequiredRubygemsVersion},
	} {
		req, err := requirementNode(field.req)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", field.key, err)
		}
		add(field.key, req)
	}

	add("rubygems_version", scalar(spec.RubygemsVersion))
	add("specification_version", &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: fmt.Sprint(spec.SpecificationVersion)})
	add("summary", scalar(spec.Summary))

	doc := &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}}
	return yaml.Marshal(doc)
}

func requirementNode(req string) (*yaml.Node, error) {
	pairs := &yaml.Node{Kind: yaml.SequenceNode}
	for _, c := range SplitRequirements(req) {
		op, version, err := splitConstraint(c)
		if err != nil {
			return nil, err
		}
		pairs.Content = append(pairs.Content, &yaml.Node{
			Kind:    yaml.SequenceNode,
			Content: []*yaml.Node{scalar(op), versionNode(version)},
		})
	}
	n := mapping(tagRequirement)
	n.Content = append(n.Content, scalar("requirements"), pairs)
	return n, nil
}

func versionNode(version string) *yaml.Node {
	n := mapping(tagVersion)
	n.Content = append(n.Content, scalar("version"), &yaml.Node{
		Kind:  yaml.ScalarNode,
		Tag:   "!!str",
		Style: yaml.SingleQuotedStyle,
		Value: version,
	})
	return n
}

func mapping(tag string) *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Tag: tag}
}

func scalar(value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value}
}

func stringSeq(values []string) *yaml.Node {
	n := &yaml.Node{Kind: yaml.SequenceNode}
	for _, v := range values {
		n.Content = append(n.Content, scalar(v))
	}
	return n
}
