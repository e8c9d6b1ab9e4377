package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zjrosen/assetcache/internal/log"
)

// SetValue sets a dotted key such as "watch.debounce" in the config file to
// a scalar value. Missing mappings are created. Comments and formatting in
// other sections are preserved by editing the yaml.Node tree.
func SetValue(configPath, key, value string) error {
	return edit(configPath, key, func(existing *yaml.Node) *yaml.Node {
		if existing != nil && existing.Kind == yaml.ScalarNode {
			existing.Value = value
			existing.Tag = ""
			existing.Style = scalarStyle(value)
			return existing
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Value: value, Style: scalarStyle(value)}
	})
}

// SaveExtensions replaces the extensions list in the config file.
func SaveExtensions(configPath string, exts []string) error {
	return edit(configPath, "extensions", func(*yaml.Node) *yaml.Node {
		node := &yaml.Node{
			Kind:    yaml.SequenceNode,
			Content: make([]*yaml.Node, 0, len(exts)),
		}
		if len(exts) == 0 {
			node.Style = yaml.FlowStyle
		}
		for _, ext := range exts {
			node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: strings.TrimPrefix(ext, ".")})
		}
		return node
	})
}

func scalarStyle(value string) yaml.Style {
	if value == "" {
		return yaml.DoubleQuotedStyle
	}
	return 0
}

// edit loads configPath, replaces the node at the dotted key with the
// result of replace, and writes the file back atomically.
func edit(configPath, key string, replace func(existing *yaml.Node) *yaml.Node) error {
	parts := strings.Split(key, ".")
	for _, p := range parts {
		if p == "" {
			return fmt.Errorf("invalid key %q", key)
		}
	}

	data, err := os.ReadFile(configPath) //nolint:gosec // G304: config path is user-controlled
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config: %w", err)
	}

	var doc yaml.Node
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing config: %w", err)
		}
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		doc = yaml.Node{
			Kind:    yaml.DocumentNode,
			Content: []*yaml.Node{{Kind: yaml.MappingNode}},
		}
	}

	node := doc.Content[0]
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("config root is not a mapping")
	}
	for i, part := range parts {
		last := i == len(parts)-1
		idx := lookup(node, part)
		if last {
			if idx < 0 {
				node.Content = append(node.Content,
					&yaml.Node{Kind: yaml.ScalarNode, Value: part},
					replace(nil),
				)
			} else {
				node.Content[idx+1] = replace(node.Content[idx+1])
			}
			break
		}
		if idx < 0 {
			child := &yaml.Node{Kind: yaml.MappingNode}
			node.Content = append(node.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Value: part},
				child,
			)
			node = child
			continue
		}
		child := node.Content[idx+1]
		if child.Kind != yaml.MappingNode {
			return fmt.Errorf("key %q: %s is not a mapping", key, strings.Join(parts[:i+1], "."))
		}
		node = child
	}

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&doc); err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	_ = encoder.Close()

	if err := writeFileAtomic(configPath, buf.Bytes()); err != nil {
		return err
	}
	log.Info(log.CatConfig, "Updated config", "path", configPath, "key", key)
	return nil
}

// lookup returns the index of key within a mapping node's content, or -1.
func lookup(mapping *yaml.Node, key string) int {
	for i := 0; i < len(mapping.Content)-1; i += 2 {
		if mapping.Content[i].Value == key {
			return i
		}
	}
	return -1
}

// writeFileAtomic writes to a temp file in the same directory, then renames.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	temp, err := os.CreateTemp(dir, ".assetcache.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tempPath := temp.Name()

	if _, err := temp.Write(data); err != nil {
		_ = temp.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := temp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
