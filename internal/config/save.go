package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Save writes the configuration to configPath.
// This preserves comments and formatting on untouched keys by merging
// into the existing document with yaml.Node.
func Save(configPath string, cfg Config) error {
	// Read existing file content
	data, err := os.ReadFile(configPath) // #nosec G304 -- path comes from the CLI flag
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config: %w", err)
	}

	// Parse into yaml.Node to preserve comments
	var doc yaml.Node
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing config: %w", err)
		}
	}

	// Marshal the config into a mapping node
	var cfgNode yaml.Node
	if err := cfgNode.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if doc.Kind == 0 {
		// Empty or new file - create document structure
		doc = yaml.Node{
			Kind:    yaml.DocumentNode,
			Content: []*yaml.Node{&cfgNode},
		}
	} else if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		root := doc.Content[0]
		if root.Kind == yaml.MappingNode {
			mergeMapping(root, &cfgNode)
		} else {
			doc.Content[0] = &cfgNode
		}
	}

	// Marshal back to YAML
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&doc); err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	_ = encoder.Close()

	return writeAtomic(configPath, buf.Bytes())
}

// WriteDefault creates a config file at configPath with default values.
// It refuses to overwrite an existing file.
func WriteDefault(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config file already exists: %s", configPath)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("checking config path: %w", err)
	}
	return Save(configPath, Defaults())
}

// mergeMapping replaces or appends each top-level key from src in dst,
// leaving keys not present in src untouched.
func mergeMapping(dst, src *yaml.Node) {
	for i := 0; i < len(src.Content)-1; i += 2 {
		key := src.Content[i].Value
		value := src.Content[i+1]

		found := false
		for j := 0; j < len(dst.Content)-1; j += 2 {
			if dst.Content[j].Value == key {
				dst.Content[j+1] = value
				found = true
				break
			}
		}
		if !found {
			dst.Content = append(dst.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Value: key},
				value,
			)
		}
	}
}

// writeAtomic writes data to path via a temp file and rename.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	temp, err := os.CreateTemp(dir, ".questdex.yaml.tmp.*")
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
