package config

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"

	"github.com/adelansari/steam-workshop-collection/pkg/types"
)

// Tags is the ordered tag → collections mapping. In YAML it is a mapping
// whose key order is the processing order:
//
//	tags:
//	  Characters: ["3445105194", "3531743955"]
//	  Vehicles: [3444831495]
type Tags []types.TagPlan

// UnmarshalYAML decodes a mapping node, keeping key order.
func (t *Tags) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: tags must be a mapping of tag to collection ids", node.Line)
	}

	out := make(Tags, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]

		plan := types.TagPlan{Tag: types.Tag(strings.TrimSpace(key.Value))}
		switch value.Kind {
		case yaml.SequenceNode:
			for _, item := range value.Content {
				if item.Kind != yaml.ScalarNode {
					return fmt.Errorf("line %d: collection ids of %s must be scalars", item.Line, key.Value)
				}
				plan.Collections = append(plan.Collections, types.CollectionID(strings.TrimSpace(item.Value)))
			}
		case yaml.ScalarNode:
			plan.Collections = []types.CollectionID{types.CollectionID(strings.TrimSpace(value.Value))}
		default:
			return fmt.Errorf("line %d: collection ids of %s must be a list", value.Line, key.Value)
		}
		out = append(out, plan)
	}

	*t = out
	return nil
}

// MarshalYAML encodes the tags as an ordered mapping with quoted ids.
func (t Tags) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, plan := range t {
		seq := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
		for _, id := range plan.Collections {
			seq.Content = append(seq.Content, &yaml.Node{
				Kind:  yaml.ScalarNode,
				Style: yaml.DoubleQuotedStyle,
				Value: string(id),
			})
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: string(plan.Tag)},
			seq,
		)
	}
	return node, nil
}

// Validate checks names and that each collection belongs to one tag.
func (t Tags) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("at least one tag is required")
	}

	tags := make(map[types.Tag]bool)
	owner := make(map[types.CollectionID]types.Tag)
	for _, plan := range t {
		if err := validName("tag", string(plan.Tag)); err != nil {
			return err
		}
		if tags[plan.Tag] {
			return fmt.Errorf("tag %s is listed twice", plan.Tag)
		}
		tags[plan.Tag] = true

		if len(plan.Collections) == 0 {
			return fmt.Errorf("tag %s has no collections", plan.Tag)
		}
		for _, id := range plan.Collections {
			if err := validName("collection id", string(id)); err != nil {
				return err
			}
			if prev, ok := owner[id]; ok {
				return fmt.Errorf("collection %s belongs to both %s and %s", id, prev, plan.Tag)
			}
			owner[id] = plan.Tag
		}
	}
	return nil
}

// Select returns the tags matching any of the glob patterns, in configured
// order. No patterns selects every tag.
func (t Tags) Select(patterns []string) (Tags, error) {
	if len(patterns) == 0 {
		return t, nil
	}

	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid tag pattern %q: %w", p, err)
		}
		globs = append(globs, g)
	}

	var out Tags
	for _, plan := range t {
		for _, g := range globs {
			if g.Match(string(plan.Tag)) {
				out = append(out, plan)
				break
			}
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no tag matches %s", strings.Join(patterns, ", "))
	}
	return out, nil
}

// Find returns the tag owning a collection.
func (t Tags) Find(id types.CollectionID) (types.Tag, bool) {
	for _, plan := range t {
		for _, c := range plan.Collections {
			if c == id {
				return plan.Tag, true
			}
		}
	}
	return "", false
}

// Plans returns the tags as engine input.
func (t Tags) Plans() []types.TagPlan {
	return append([]types.TagPlan(nil), t...)
}

func validName(what, name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("%s cannot be empty", what)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%s %q cannot contain path separators", what, name)
	case name == "." || name == "..":
		return fmt.Errorf("%s %q is not allowed", what, name)
	}
	return nil
}

func ids(values ...string) []types.CollectionID {
	out := make([]types.CollectionID, len(values))
	for i, v := range values {
		out[i] = types.CollectionID(v)
	}
	return out
}
