// Package config loads the fronts managed by an environment.
//
// A fronts file is YAML:
//
//	fronts:
//	  - name: Front
//	    branch: master
//	  - name: Admin
//	    build_image: aws/codebuild/standard:7.0
//	    price_class: PriceClass_All
//	    tags:
//	      team: web
//
// Fields left empty fall back to the environment settings.
package config

import (
	"fmt"
	"os"
	"slices"

	"github.com/savaki/front-deployer/internal/constants"
	"github.com/savaki/front-deployer/internal/errors"
	"github.com/savaki/front-deployer/internal/synth"
	"github.com/savaki/front-deployer/internal/topology"
	"gopkg.in/yaml.v3"
)

// Front is the configuration of one front.
type Front struct {
	Name       string            `yaml:"name"`
	Branch     string            `yaml:"branch,omitempty"`
	BuildImage string            `yaml:"build_image,omitempty"`
	PriceClass string            `yaml:"price_class,omitempty"`
	Tags       map[string]string `yaml:"tags,omitempty"`
}

// Fronts is the parsed fronts file.
type Fronts struct {
	Fronts []Front `yaml:"fronts"`
}

// Default returns the configuration used when no fronts file is given: a
// single front named Front.
func Default() *Fronts {
	return &Fronts{
		Fronts: []Front{{Name: constants.DefaultFrontName}},
	}
}

// Load reads a fronts file. An empty path returns Default.
func Load(path string) (*Fronts, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fronts file %s: %w", path, err)
	}

	fronts, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return fronts, nil
}

// Parse decodes and validates fronts YAML.
func Parse(data []byte) (*Fronts, error) {
	var fronts Fronts
	if err := yaml.Unmarshal(data, &fronts); err != nil {
		return nil, fmt.Errorf("failed to parse fronts: %w", err)
	}

	if len(fronts.Fronts) == 0 {
		return nil, fmt.Errorf("no fronts defined")
	}

	seen := map[string]bool{}
	for _, f := range fronts.Fronts {
		if err := topology.ValidateName(f.Name); err != nil {
			return nil, err
		}
		if seen[f.Name] {
			return nil, fmt.Errorf("front %q is defined more than once", f.Name)
		}
		seen[f.Name] = true
	}

	if err := checkCollisions(fronts.Fronts); err != nil {
		return nil, err
	}

	return &fronts, nil
}

// checkCollisions rejects front names whose logical ids overlap, such as X
// and XPost, since their stacks cannot be rendered side by side.
func checkCollisions(fronts []Front) error {
	if len(fronts) < 2 {
		return nil
	}

	topologies := make([]*topology.Topology, 0, len(fronts))
	for _, f := range fronts {
		topo, err := topology.New(topology.Props{FrontName: f.Name})
		if err != nil {
			return err
		}
		topologies = append(topologies, topo)
	}

	if _, err := synth.Template(topologies...); err != nil {
		return err
	}
	return nil
}

// Names returns the front names in file order.
func (f *Fronts) Names() []string {
	var names []string
	for _, front := range f.Fronts {
		names = append(names, front.Name)
	}
	return names
}

// Find returns the front called name.
func (f *Fronts) Find(name string) (Front, error) {
	for _, front := range f.Fronts {
		if front.Name == name {
			return front, nil
		}
	}
	return Front{}, fmt.Errorf("%w: %s", errors.ErrUnknownFront, name)
}

// Select returns the named fronts in file order, or every front when no
// names are given.
func (f *Fronts) Select(names ...string) ([]Front, error) {
	if len(names) == 0 {
		return slices.Clone(f.Fronts), nil
	}

	for _, name := range names {
		if _, err := f.Find(name); err != nil {
			return nil, err
		}
	}

	var selected []Front
	for _, front := range f.Fronts {
		if slices.Contains(names, front.Name) {
			selected = append(selected, front)
		}
	}
	return selected, nil
}
