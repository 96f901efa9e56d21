package format

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

func init() {
	Register(&YAMLHandler{}, "yaml", "yml", "json")
}

// YAMLHandler implements Handler for structured-text data: a top-level
// sequence of mappings, one mapping per row. Because YAML is a superset of
// JSON, JSON buffers parse through the same path.
type YAMLHandler struct{}

// Name returns the registry name for this handler.
func (h *YAMLHandler) Name() string { return "yaml" }

// ImpliesHeaders reports true: mapping keys always carry the column names,
// so the first sequence item is data row 1.
func (h *YAMLHandler) ImpliesHeaders() bool { return true }

// Parse reads a sequence-of-mappings document. Column names come from the
// mapping keys, so HasHeaders is implied; key order of the first mapping
// fixes the header order, with keys first seen in later rows appended.
func (h *YAMLHandler) Parse(buf []byte, opts ParseOptions) *ParseResult {
	root, err := yamlRoot(buf)
	if err != nil {
		return containerFailure(err.Error())
	}

	result := &ParseResult{}
	seen := make(map[string]bool)

	for i, item := range root.Content {
		rowNum := i + 1

		if item.Kind != yaml.MappingNode {
			result.Errors = append(result.Errors, RowError{
				Row:     rowNum,
				Kind:    ErrKindParse,
				Message: fmt.Sprintf("expected a mapping, got %s", yamlKindName(item.Kind)),
			})
			continue
		}

		row := NewRow(len(item.Content) / 2)
		for j := 0; j+1 < len(item.Content); j += 2 {
			key := CleanCell(item.Content[j].Value)
			if key == "" {
				key = syntheticHeader(j / 2)
			}
			if !seen[key] {
				seen[key] = true
				result.Headers = append(result.Headers, key)
			}
			row.Set(key, yamlCell(item.Content[j+1]))
		}

		if opts.SkipEmptyRows && row.IsEmpty() {
			continue
		}
		if opts.MaxRows > 0 && len(result.Rows) >= opts.MaxRows {
			break
		}
		result.Rows = append(result.Rows, row)
	}

	if result.Headers == nil {
		result.Headers = []string{}
	}
	return result
}

// Export writes rows as a sequence of mappings with keys in header order.
// IncludeHeaders is ignored: mapping keys always carry the column names.
func (h *YAMLHandler) Export(rows []RowRecord, headers []string, opts ExportOptions) (*ExportResult, error) {
	root := &yaml.Node{Kind: yaml.SequenceNode}
	for _, row := range rows {
		root.Content = append(root.Content, yamlMapping(row, headers))
	}

	data, err := yaml.Marshal(root)
	if err != nil {
		return nil, fmt.Errorf("serialize document: %w", err)
	}

	return yamlResult(data, exportBaseName(opts)), nil
}

// GenerateTemplate produces a starter document. Column descriptions become a
// leading comment block; sample rows follow as ordinary mappings.
func (h *YAMLHandler) GenerateTemplate(headers []string, opts TemplateOptions) (*ExportResult, error) {
	root := &yaml.Node{Kind: yaml.SequenceNode}

	if len(opts.Descriptions) > 0 {
		var lines []string
		for _, col := range headers {
			if d := opts.Descriptions[col]; d != "" {
				lines = append(lines, fmt.Sprintf("%s: %s", col, d))
			}
		}
		root.HeadComment = strings.Join(lines, "\n")
	}

	if opts.IncludeSamples {
		for _, row := range sampleRows(headers, opts.SampleCount) {
			root.Content = append(root.Content, yamlMapping(row, headers))
		}
	}

	data, err := yaml.Marshal(root)
	if err != nil {
		return nil, fmt.Errorf("serialize document: %w", err)
	}

	return yamlResult(data, "template"), nil
}

// ValidateContainer checks the buffer parses and holds a top-level sequence.
func (h *YAMLHandler) ValidateContainer(buf []byte) error {
	_, err := yamlRoot(buf)
	return err
}

func yamlRoot(buf []byte) (*yaml.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(buf, &doc); err != nil {
		return nil, fmt.Errorf("parse structured text: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, fmt.Errorf("empty document")
	}
	root := doc.Content[0]
	if root.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("expected a top-level sequence of mappings, got %s", yamlKindName(root.Kind))
	}
	return root, nil
}

func yamlResult(data []byte, base string) *ExportResult {
	return &ExportResult{
		Buffer:   data,
		Filename: fmt.Sprintf("%s_%s.yaml", base, time.Now().Format("20060102_150405")),
		MimeType: "application/yaml",
		Size:     len(data),
	}
}

// yamlCell converts a value node into a Cell using the resolved tag, so
// typed scalars survive without re-guessing. Nested structures flatten to
// their serialized text rather than failing the row.
func yamlCell(n *yaml.Node) Cell {
	if n.Kind != yaml.ScalarNode {
		raw, err := yaml.Marshal(n)
		if err != nil {
			return TextCell(n.Value)
		}
		return TextCell(strings.TrimSpace(string(raw)))
	}

	switch n.Tag {
	case "!!int", "!!float":
		if f, err := strconv.ParseFloat(n.Value, 64); err == nil {
			return NumberCell(f)
		}
	case "!!bool":
		// the 1.1 set (yes/no, on/off) resolves as !!bool too
		if b, ok := ParseBool(n.Value); ok {
			return BoolCell(b)
		}
	case "!!timestamp":
		if t, ok := ParseDate(n.Value); ok {
			return DateCell(t)
		}
		if t, err := time.Parse(time.RFC3339, n.Value); err == nil {
			return DateCell(t)
		}
	case "!!null":
		return TextCell("")
	}

	return TextCell(n.Value)
}

// yamlMapping renders a row as a mapping node with keys in header order.
func yamlMapping(row RowRecord, headers []string) *yaml.Node {
	m := &yaml.Node{Kind: yaml.MappingNode}
	for _, col := range headers {
		m.Content = append(m.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: col},
			yamlScalar(row.Value(col)),
		)
	}
	return m
}

func yamlScalar(c Cell) *yaml.Node {
	n := &yaml.Node{Kind: yaml.ScalarNode, Value: c.String()}
	switch c.Kind {
	case KindNumber:
		if c.Number == float64(int64(c.Number)) {
			n.Tag = "!!int"
		} else {
			n.Tag = "!!float"
		}
	case KindBool:
		n.Tag = "!!bool"
	case KindDate:
		n.Tag = "!!timestamp"
	default:
		n.Tag = "!!str"
	}
	return n
}

func yamlKindName(k yaml.Kind) string {
	switch k {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return "unknown"
	}
}
