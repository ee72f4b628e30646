// Package glossary loads the domain term-substitution table and applies it to text.
// Clean Architecture: Adapter implementing ports.Normalizer.
package glossary

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/0xcro3dile/incidentrag-go/internal/domain/entities"
)

// fold case-folds s so that keys and text compare regardless of case.
// A Caser carries state, so each call gets its own.
func fold(s string) string {
	return cases.Fold().String(norm.NFC.String(s))
}

// Load reads a glossary from a JSON object or YAML mapping. Entries keep the
// order in which they appear in the file; a repeated term keeps its first
// position and its last value.
func Load(path string) (entities.Glossary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading glossary: %w", err)
	}

	var pairs [][2]string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		pairs, err = parseYAML(data)
	default:
		pairs, err = parseJSON(data)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing glossary %s: %w", path, err)
	}
	return build(pairs), nil
}

func build(pairs [][2]string) entities.Glossary {
	glossary := make(entities.Glossary, 0, len(pairs))
	position := make(map[string]int, len(pairs))
	for _, p := range pairs {
		term := strings.TrimSpace(fold(p[0]))
		if term == "" {
			continue
		}
		normalized := strings.TrimSpace(fold(p[1]))
		if i, ok := position[term]; ok {
			glossary[i].Normalized = normalized
			continue
		}
		position[term] = len(glossary)
		glossary = append(glossary, entities.GlossaryEntry{Term: term, Normalized: normalized})
	}
	return glossary
}

// parseJSON walks the object token by token since decoding into a map loses order.
func parseJSON(data []byte) ([][2]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected a JSON object")
	}

	var pairs [][2]string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected key token %v", tok)
		}
		var value string
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("value of %q: %w", key, err)
		}
		pairs = append(pairs, [2]string{key, value})
	}
	if _, err := dec.Token(); err != nil && err != io.EOF {
		return nil, err
	}
	return pairs, nil
}

func parseYAML(data []byte) ([][2]string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("expected a YAML mapping")
	}

	pairs := make([][2]string, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i], root.Content[i+1]
		if value.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("value of %q must be a string", key.Value)
		}
		pairs = append(pairs, [2]string{key.Value, value.Value})
	}
	return pairs, nil
}
