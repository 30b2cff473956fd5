package models

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Stack is the on-disk stack file: compose-like services plus the named
// environment variants the services are resolved against.
type Stack struct {
	Name     string                       `yaml:"name" validate:"required,slug"`
	Services map[string]StackService      `yaml:"services" validate:"required,min=1,dive,keys,slug,endkeys"`
	Volumes  map[string]StackVolume       `yaml:"volumes" validate:"dive,keys,slug,endkeys"`
	Variants map[string]map[string]string `yaml:"variants" validate:"dive,keys,slug,endkeys"`
}

type StackService struct {
	Image       string            `yaml:"image" validate:"required_without=Build,excluded_with=Build"`
	Build       *StackBuild       `yaml:"build"`
	Environment EnvironmentMap    `yaml:"environment"`
	Ports       []string          `yaml:"ports"`
	Volumes     []string          `yaml:"volumes"`
	DependsOn   DependsOnMap      `yaml:"depends_on"`
	HealthCheck *StackHealthCheck `yaml:"healthcheck"`
	Command     StringOrList      `yaml:"command"`
}

type StackBuild struct {
	Context    string            `yaml:"context" validate:"required"`
	Dockerfile string            `yaml:"dockerfile"`
	Args       map[string]string `yaml:"args"`
}

// UnmarshalYAML accepts both `build: ./app` and the long mapping form.
func (b *StackBuild) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		b.Context = node.Value
		return nil
	}
	type plain StackBuild
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*b = StackBuild(p)
	return nil
}

type StackHealthCheck struct {
	Test        StringOrList `yaml:"test"`
	Interval    string       `yaml:"interval"`
	Timeout     string       `yaml:"timeout"`
	Retries     int          `yaml:"retries" validate:"gte=0"`
	StartPeriod string       `yaml:"start_period"`
}

type StackVolume struct {
	Labels map[string]string `yaml:"labels"`
}

// StringOrList decodes either a scalar or a sequence of scalars.
type StringOrList []string

func (s *StringOrList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*s = StringOrList{node.Value}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return err
		}
		*s = items
		return nil
	default:
		return fmt.Errorf("line %d: expected string or list", node.Line)
	}
}

// EnvironmentMap decodes either a mapping or a list of KEY=VALUE entries.
type EnvironmentMap map[string]string

func (e *EnvironmentMap) UnmarshalYAML(node *yaml.Node) error {
	out := map[string]string{}
	switch node.Kind {
	case yaml.MappingNode:
		if err := node.Decode(&out); err != nil {
			return err
		}
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return err
		}
		for _, item := range items {
			k, v, _ := strings.Cut(item, "=")
			if strings.TrimSpace(k) == "" {
				return fmt.Errorf("line %d: environment entry %q has no name", node.Line, item)
			}
			out[k] = v
		}
	default:
		return fmt.Errorf("line %d: environment must be a mapping or a list", node.Line)
	}
	*e = out
	return nil
}

// DependsOnMap decodes both `depends_on: [db]` and
// `depends_on: {db: {condition: service_healthy}}`. The short list form
// implies service_healthy.
type DependsOnMap map[string]DependsOnEntry

type DependsOnEntry struct {
	Condition DependencyCondition `yaml:"condition"`
}

func (d *DependsOnMap) UnmarshalYAML(node *yaml.Node) error {
	out := DependsOnMap{}
	switch node.Kind {
	case yaml.SequenceNode:
		var names []string
		if err := node.Decode(&names); err != nil {
			return err
		}
		for _, n := range names {
			out[n] = DependsOnEntry{Condition: ConditionServiceHealthy}
		}
	case yaml.MappingNode:
		var m map[string]DependsOnEntry
		if err := node.Decode(&m); err != nil {
			return err
		}
		for k, v := range m {
			if v.Condition == "" {
				v.Condition = ConditionServiceHealthy
			}
			out[k] = v
		}
	default:
		return fmt.Errorf("line %d: depends_on must be a list or a mapping", node.Line)
	}
	*d = out
	return nil
}

func (s Stack) ServiceNames() []string {
	names := make([]string, 0, len(s.Services))
	for n := range s.Services {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (s Stack) VariantNames() []string {
	names := make([]string, 0, len(s.Variants))
	for n := range s.Variants {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (s Stack) Variant(name string) (EnvironmentVariant, error) {
	values, ok := s.Variants[name]
	if !ok {
		return EnvironmentVariant{}, fmt.Errorf("variant %q is not defined (have %s)", name, strings.Join(s.VariantNames(), ", "))
	}
	return EnvironmentVariant{Name: name, Values: values}, nil
}
