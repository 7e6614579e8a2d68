package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// CopyKind tells which form a copy entry was written in
type CopyKind int

const (
	// PlainCopy is a "source: destination" pair
	PlainCopy CopyKind = iota
	// StructuredCopy is a mapping with its own enabled, source, destination
	// and destinationRelative fields
	StructuredCopy
)

func (k CopyKind) String() string {
	if k == StructuredCopy {
		return "structured"
	}
	return "plain"
}

// CopyEntry is one file or folder copy instruction
type CopyEntry struct {
	Kind        CopyKind
	Enabled     bool
	Source      string
	Destination string
	// DestinationRelative overrides the artefact-level flag when set.
	// It is always nil for plain entries.
	DestinationRelative *bool
}

// IsRelative reports whether the destination is joined under the artefact
// root, falling back to the caller's default for plain entries.
func (e CopyEntry) IsRelative(defaultRelative bool) bool {
	if e.DestinationRelative != nil {
		return *e.DestinationRelative
	}
	return defaultRelative
}

type structuredCopy struct {
	Enabled             *bool  `yaml:"enabled"`
	Source              string `yaml:"source"`
	Destination         string `yaml:"destination"`
	DestinationRelative *bool  `yaml:"destinationRelative"`
}

// CopyEntries is an ordered set of copy entries keyed by source path
type CopyEntries []CopyEntry

// UnmarshalYAML decodes a mapping whose values are either destination
// strings or structured entries. Key order is preserved.
func (c *CopyEntries) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: copy entries must be a mapping of source to destination", node.Line)
	}

	entries := make(CopyEntries, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		if key.Kind != yaml.ScalarNode || key.Value == "" {
			return fmt.Errorf("line %d: copy entry key must be a non-empty path", key.Line)
		}

		switch value.Kind {
		case yaml.ScalarNode:
			if value.Value == "" {
				return fmt.Errorf("line %d: copy entry %q has an empty destination", value.Line, key.Value)
			}
			entries = append(entries, CopyEntry{
				Kind:        PlainCopy,
				Enabled:     true,
				Source:      key.Value,
				Destination: value.Value,
			})
		case yaml.MappingNode:
			var s structuredCopy
			if err := value.Decode(&s); err != nil {
				return fmt.Errorf("line %d: malformed copy entry %q: %w", value.Line, key.Value, err)
			}
			entry := CopyEntry{
				Kind:                StructuredCopy,
				Enabled:             s.Enabled == nil || *s.Enabled,
				Source:              s.Source,
				Destination:         s.Destination,
				DestinationRelative: s.DestinationRelative,
			}
			if entry.Source == "" {
				entry.Source = key.Value
			}
			if entry.Destination == "" {
				entry.Destination = entry.Source
			}
			entries = append(entries, entry)
		default:
			return fmt.Errorf("line %d: copy entry %q must be a string or a mapping", value.Line, key.Value)
		}
	}

	*c = entries
	return nil
}
