// Package loader reads knowledge-base files into entries ready for indexing.
//
// Supported layouts:
//
//	.json        array of objects, or {"entries": [...]}
//	.yaml .yml   sequence of mappings, or a mapping with an "entries" sequence
//	.txt         blocks separated by a "---" line; a line starting with
//	             "Решение:" or "Solution:" splits incident text from its solution
//
// Object keys id, incident and solution map to entry fields ("problem" and
// "description" are accepted for incident); every other scalar key is kept as metadata.
package loader

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/0xcro3dile/incidentrag-go/internal/domain/entities"
)

var incidentKeys = []string{"incident", "problem", "description"}

// MultiLoader dispatches on file extension.
type MultiLoader struct {
	parsers map[string]func([]byte) ([]map[string]any, error)
}

// NewMultiLoader creates a loader for every supported knowledge file format.
func NewMultiLoader() *MultiLoader {
	return &MultiLoader{
		parsers: map[string]func([]byte) ([]map[string]any, error){
			".json": parseJSON,
			".yaml": parseYAML,
			".yml":  parseYAML,
			".txt":  parseText,
		},
	}
}

// Load reads all entries from path. Source is set to path on every entry.
func (m *MultiLoader) Load(ctx context.Context, path string) ([]entities.KnowledgeEntry, error) {
	ext := strings.ToLower(filepath.Ext(path))
	parse, ok := m.parsers[ext]
	if !ok {
		return nil, fmt.Errorf("unsupported knowledge file extension %q", ext)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}

	out := make([]entities.KnowledgeEntry, 0, len(records))
	for _, rec := range records {
		out = append(out, toEntry(rec, path))
	}
	return out, nil
}

// SupportedExtensions returns all supported extensions, sorted.
func (m *MultiLoader) SupportedExtensions() []string {
	exts := make([]string, 0, len(m.parsers))
	for ext := range m.parsers {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

func parseJSON(data []byte) ([]map[string]any, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var wrapped struct {
			Entries []map[string]any `json:"entries"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, err
		}
		return wrapped.Entries, nil
	}
	var list []map[string]any
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func parseYAML(data []byte) ([]map[string]any, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}

	root := doc.Content[0]
	if root.Kind == yaml.MappingNode {
		var wrapped struct {
			Entries []map[string]any `yaml:"entries"`
		}
		if err := root.Decode(&wrapped); err != nil {
			return nil, err
		}
		return wrapped.Entries, nil
	}
	var list []map[string]any
	if err := root.Decode(&list); err != nil {
		return nil, err
	}
	return list, nil
}

func parseText(data []byte) ([]map[string]any, error) {
	var (
		records  []map[string]any
		incident strings.Builder
		solution strings.Builder
		inSol    bool
	)
	flush := func() {
		inc, sol := strings.TrimSpace(incident.String()), strings.TrimSpace(solution.String())
		if inc != "" || sol != "" {
			records = append(records, map[string]any{"incident": inc, "solution": sol})
		}
		incident.Reset()
		solution.Reset()
		inSol = false
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "---" {
			flush()
			continue
		}
		if rest, ok := solutionLine(trimmed); ok {
			inSol = true
			line = rest
		}
		if inSol {
			solution.WriteString(line)
			solution.WriteByte('\n')
		} else {
			incident.WriteString(line)
			incident.WriteByte('\n')
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	flush()
	return records, nil
}

func solutionLine(line string) (string, bool) {
	lower := strings.ToLower(line)
	for _, prefix := range []string{"решение:", "solution:"} {
		if strings.HasPrefix(lower, prefix) {
			return line[len(prefix):], true
		}
	}
	return "", false
}

func toEntry(rec map[string]any, source string) entities.KnowledgeEntry {
	entry := entities.KnowledgeEntry{
		ID:       scalar(rec["id"]),
		Solution: strings.TrimSpace(scalar(rec["solution"])),
		Source:   source,
	}
	for _, key := range incidentKeys {
		if v := strings.TrimSpace(scalar(rec[key])); v != "" {
			entry.Incident = v
			break
		}
	}

	for key, value := range rec {
		if key == "id" || key == "solution" || isIncidentKey(key) {
			continue
		}
		if s := scalar(value); s != "" {
			if entry.Extra == nil {
				entry.Extra = make(map[string]string)
			}
			entry.Extra[key] = s
		}
	}
	return entry
}

func isIncidentKey(key string) bool {
	for _, k := range incidentKeys {
		if k == key {
			return true
		}
	}
	return false
}

// scalar renders strings, numbers and booleans; composite values yield "".
func scalar(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool, int, int64, uint64, float64:
		return fmt.Sprint(t)
	case json.Number:
		return t.String()
	}
	return ""
}
