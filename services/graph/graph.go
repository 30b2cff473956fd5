// Package graph models service dependencies as a DAG with typed edges and
// produces the order in which the sequencer starts services.
package graph

import (
	"fmt"
	"sort"

	"github.com/ezenkico/deploy-commander/sequencer/models"
	"github.com/ezenkico/deploy-commander/sequencer/services"
)

// Edge points from a dependent service to the service it waits on.
type Edge struct {
	From      string
	To        string
	Condition models.DependencyCondition
}

type Graph struct {
	nodes map[string]models.ServiceDescriptor
	out   map[string][]Edge // dependent -> its dependencies
	in    map[string][]Edge // dependency -> its dependents
}

// Build validates the descriptors and returns their dependency graph.
func Build(descriptors []models.ServiceDescriptor) (*Graph, error) {
	if err := services.CheckUniqueServiceNames(descriptors); err != nil {
		return nil, err
	}
	if err := services.CheckDependsOnServicesExist(descriptors); err != nil {
		return nil, err
	}
	if err := services.CheckDependencyConditions(descriptors); err != nil {
		return nil, err
	}
	if err := services.CheckCircularDependencies(descriptors); err != nil {
		return nil, err
	}

	g := &Graph{
		nodes: make(map[string]models.ServiceDescriptor, len(descriptors)),
		out:   make(map[string][]Edge),
		in:    make(map[string][]Edge),
	}
	for _, d := range descriptors {
		g.nodes[d.Name] = d
	}
	for _, d := range descriptors {
		for _, dep := range d.DependsOn {
			e := Edge{From: d.Name, To: dep.Service, Condition: dep.Condition}
			g.out[d.Name] = append(g.out[d.Name], e)
			g.in[dep.Service] = append(g.in[dep.Service], e)
		}
	}

	return g, nil
}

func (g *Graph) Service(name string) (models.ServiceDescriptor, bool) {
	s, ok := g.nodes[name]
	return s, ok
}

// Dependencies returns the edges leaving name, sorted by target.
func (g *Graph) Dependencies(name string) []Edge {
	edges := append([]Edge(nil), g.out[name]...)
	sort.Slice(edges, func(i, j int) bool { return edges[i].To < edges[j].To })
	return edges
}

// Dependents returns the edges arriving at name, sorted by source.
func (g *Graph) Dependents(name string) []Edge {
	edges := append([]Edge(nil), g.in[name]...)
	sort.Slice(edges, func(i, j int) bool { return edges[i].From < edges[j].From })
	return edges
}

// Order returns services so that every dependency precedes its dependents.
// Services that become ready at the same time are ordered by name.
func (g *Graph) Order() ([]models.ServiceDescriptor, error) {
	remaining := make(map[string]int, len(g.nodes))
	for name := range g.nodes {
		remaining[name] = len(g.out[name])
	}

	ready := []string{}
	for name, n := range remaining {
		if n == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	order := make([]models.ServiceDescriptor, 0, len(g.nodes))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		order = append(order, g.nodes[name])

		released := []string{}
		for _, e := range g.in[name] {
			remaining[e.From]--
			if remaining[e.From] == 0 {
				released = append(released, e.From)
			}
		}
		ready = append(ready, released...)
		sort.Strings(ready)
	}

	if len(order) != len(g.nodes) {
		return nil, fmt.Errorf("dependency graph has a cycle")
	}

	return order, nil
}

// Reverse returns the stop order: dependents before their dependencies.
func (g *Graph) Reverse() ([]models.ServiceDescriptor, error) {
	order, err := g.Order()
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order, nil
}
