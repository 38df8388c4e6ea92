package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dshills/taxgen/internal/schema"
)

// Metadata is the descriptive header of a template file.
type Metadata struct {
	Description string `yaml:"description" json:"description"`
	Note        string `yaml:"note,omitempty" json:"note,omitempty"`
	Version     string `yaml:"version" json:"version"`
}

// DefaultMetadata is written by Save when creating a new template file.
var DefaultMetadata = Metadata{
	Description: "Tax domain templates for synthetic reasoning case generation",
	Note:        "All domains are defined here. Add new domains by adding entries under domains.",
	Version:     "1.0",
}

// templateFile is the on-disk shape. Domains stays a node so key order
// survives decoding.
type templateFile struct {
	Metadata Metadata  `yaml:"metadata"`
	Domains  yaml.Node `yaml:"domains"`
}

// LoadFile reads a YAML or JSON template file. JSON is read through the YAML
// decoder, which accepts it unchanged.
func LoadFile(path string) (*Registry, error) {
	templates, err := readTemplates(path)
	if err != nil {
		return nil, err
	}
	r, err := NewRegistry(templates...)
	if err != nil {
		return nil, fmt.Errorf("domain: %s: %w", path, err)
	}
	r.path = path
	return r, nil
}

// Reload re-reads the backing file, replacing every template. A registry with
// no backing file is left unchanged.
func (r *Registry) Reload() error {
	path := r.Path()
	if path == "" {
		return nil
	}
	templates, err := readTemplates(path)
	if err != nil {
		return err
	}
	fresh, err := NewRegistry(templates...)
	if err != nil {
		return fmt.Errorf("domain: %s: %w", path, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = fresh.order
	r.templates = fresh.templates
	return nil
}

func readTemplates(path string) ([]schema.Template, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("domain: read %s: %w", path, err)
	}
	var doc templateFile
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("domain: parse %s: %w", path, err)
	}
	if doc.Domains.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("domain: parse %s: domains must be a mapping", path)
	}
	content := doc.Domains.Content
	templates := make([]schema.Template, 0, len(content)/2)
	for i := 0; i+1 < len(content); i += 2 {
		key := content[i].Value
		var t schema.Template
		if err := content[i+1].Decode(&t); err != nil {
			return nil, fmt.Errorf("domain: parse %s: domain %q: %w", path, key, err)
		}
		if t.Name == "" {
			t.Name = key
		}
		templates = append(templates, t)
	}
	return templates, nil
}

// Save writes the registry to path in template-file form. Files ending in
// .json are written as JSON; anything else as YAML. Domain order is kept.
func (r *Registry) Save(path string, meta Metadata) error {
	templates := r.All()

	var (
		out []byte
		err error
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		out, err = encodeJSON(meta, templates)
	} else {
		out, err = encodeYAML(meta, templates)
	}
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("domain: create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("domain: write %s: %w", path, err)
	}
	return nil
}

func encodeYAML(meta Metadata, templates []schema.Template) ([]byte, error) {
	doc := templateFile{Metadata: meta, Domains: yaml.Node{Kind: yaml.MappingNode}}
	for _, t := range templates {
		var v yaml.Node
		if err := v.Encode(t); err != nil {
			return nil, fmt.Errorf("domain: encode %q: %w", t.Name, err)
		}
		doc.Domains.Content = append(doc.Domains.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: t.Name}, &v)
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, fmt.Errorf("domain: encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("domain: encode yaml: %w", err)
	}
	return buf.Bytes(), nil
}

// encodeJSON builds the domains object by hand; encoding/json sorts map keys.
func encodeJSON(meta Metadata, templates []schema.Template) ([]byte, error) {
	var buf bytes.Buffer
	mb, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("domain: encode json: %w", err)
	}
	buf.WriteString(`{"metadata":`)
	buf.Write(mb)
	buf.WriteString(`,"domains":{`)
	for i, t := range templates {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, _ := json.Marshal(t.Name)
		tb, err := json.Marshal(t)
		if err != nil {
			return nil, fmt.Errorf("domain: encode %q: %w", t.Name, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(tb)
	}
	buf.WriteString("}}")

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, buf.Bytes(), "", "  "); err != nil {
		return nil, fmt.Errorf("domain: indent json: %w", err)
	}
	pretty.WriteByte('\n')
	return pretty.Bytes(), nil
}
