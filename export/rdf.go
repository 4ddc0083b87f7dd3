// Package export serializes the reconciled school graph as RDF.
package export

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/data-for-good-bg/semantic-schools/vocabulary/eddata"
)

// Format specifies the output serialization format.
type Format string

const (
	// FormatTurtle produces Turtle (.ttl) output.
	FormatTurtle Format = "turtle"

	// FormatNTriples produces N-Triples (.nt) output.
	FormatNTriples Format = "ntriples"

	// FormatJSONLD produces JSON-LD (.jsonld) output.
	FormatJSONLD Format = "jsonld"
)

// FormatInfo provides metadata about an export format.
type FormatInfo struct {
	Name      Format
	MIMEType  string
	Extension string
}

// FormatRegistry contains metadata for all supported formats.
var FormatRegistry = map[Format]FormatInfo{
	FormatTurtle:   {Name: FormatTurtle, MIMEType: "text/turtle", Extension: ".ttl"},
	FormatNTriples: {Name: FormatNTriples, MIMEType: "application/n-triples", Extension: ".nt"},
	FormatJSONLD:   {Name: FormatJSONLD, MIMEType: "application/ld+json", Extension: ".jsonld"},
}

// ParseFormat accepts a format name or its file extension.
func ParseFormat(s string) (Format, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for f, info := range FormatRegistry {
		if s == string(f) || s == strings.TrimPrefix(info.Extension, ".") {
			return f, nil
		}
	}
	return "", fmt.Errorf("unsupported format: %s", s)
}

// IRI is an object that refers to another resource.
type IRI string

// Triple is one predicate/object pair of an entity.
type Triple struct {
	Predicate string
	Object    any
}

// Entity is one exported resource.
type Entity struct {
	IRI     string
	Classes []string
	Triples []Triple
}

// Exporter collects entities and writes them in one of the formats.
type Exporter struct {
	entities []Entity
	prefixes map[string]string
}

// NewExporter creates an empty exporter.
func NewExporter() *Exporter {
	return &Exporter{prefixes: eddata.Prefixes}
}

// AddEntity adds an entity to be exported. Nil objects are dropped.
func (e *Exporter) AddEntity(entity Entity) {
	triples := entity.Triples[:0:0]
	for _, t := range entity.Triples {
		if t.Object != nil {
			triples = append(triples, t)
		}
	}
	entity.Triples = triples
	e.entities = append(e.entities, entity)
}

// Len returns the number of entities.
func (e *Exporter) Len() int {
	return len(e.entities)
}

// Export serializes all entities to the specified format.
func (e *Exporter) Export(format Format) (string, error) {
	switch format {
	case FormatTurtle:
		return e.toTurtle(), nil
	case FormatNTriples:
		return e.toNTriples(), nil
	case FormatJSONLD:
		return e.toJSONLD()
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}

func (e *Exporter) sortedPrefixes() []string {
	keys := make([]string, 0, len(e.prefixes))
	for k := range e.prefixes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (e *Exporter) toTurtle() string {
	var sb strings.Builder
	for _, prefix := range e.sortedPrefixes() {
		fmt.Fprintf(&sb, "@prefix %s: <%s> .\n", prefix, e.prefixes[prefix])
	}
	sb.WriteString("\n")

	for _, entity := range e.entities {
		fmt.Fprintf(&sb, "<%s>\n", entity.IRI)
		n := len(entity.Classes) + len(entity.Triples)
		i := 0
		terminate := func() {
			i++
			if i < n {
				sb.WriteString(" ;\n")
			} else {
				sb.WriteString(" .\n")
			}
		}
		for _, c := range entity.Classes {
			fmt.Fprintf(&sb, "    a <%s>", c)
			terminate()
		}
		for _, t := range entity.Triples {
			fmt.Fprintf(&sb, "    <%s> %s", t.Predicate, formatObject(t.Object, "xsd:"))
			terminate()
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (e *Exporter) toNTriples() string {
	var sb strings.Builder
	for _, entity := range e.entities {
		for _, c := range entity.Classes {
			fmt.Fprintf(&sb, "<%s> <%s> <%s> .\n", entity.IRI, eddata.RDFType, c)
		}
		for _, t := range entity.Triples {
			fmt.Fprintf(&sb, "<%s> <%s> %s .\n", entity.IRI, t.Predicate, formatObject(t.Object, ""))
		}
	}
	return sb.String()
}

func (e *Exporter) toJSONLD() (string, error) {
	graph := make([]map[string]any, 0, len(e.entities))
	for _, entity := range e.entities {
		node := map[string]any{"@id": entity.IRI}
		if len(entity.Classes) > 0 {
			node["@type"] = entity.Classes
		}
		for _, t := range entity.Triples {
			value := jsonLDValue(t.Object)
			switch existing := node[t.Predicate].(type) {
			case nil:
				node[t.Predicate] = value
			case []any:
				node[t.Predicate] = append(existing, value)
			default:
				node[t.Predicate] = []any{existing, value}
			}
		}
		graph = append(graph, node)
	}

	doc := map[string]any{
		"@context": e.prefixes,
		"@graph":   graph,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal json-ld: %w", err)
	}
	return string(data) + "\n", nil
}

// formatObject renders an object for Turtle (xsd = "xsd:") or N-Triples
// (xsd = "", full datatype IRIs).
func formatObject(obj any, xsd string) string {
	datatype := func(name string) string {
		if xsd != "" {
			return xsd + name
		}
		return "<" + eddata.XSDNamespace + name + ">"
	}
	switch v := obj.(type) {
	case IRI:
		return fmt.Sprintf("<%s>", v)
	case string:
		return fmt.Sprintf("\"%s\"", escapeString(v))
	case int, int32, int64:
		return fmt.Sprintf("\"%d\"^^%s", v, datatype("integer"))
	case decimal.Decimal:
		return fmt.Sprintf("\"%s\"^^%s", v.String(), datatype("decimal"))
	case float32, float64:
		return fmt.Sprintf("\"%v\"^^%s", v, datatype("decimal"))
	case bool:
		return fmt.Sprintf("\"%t\"^^%s", v, datatype("boolean"))
	default:
		return fmt.Sprintf("\"%s\"", escapeString(fmt.Sprint(v)))
	}
}

func jsonLDValue(obj any) any {
	switch v := obj.(type) {
	case IRI:
		return map[string]string{"@id": string(v)}
	case decimal.Decimal:
		return map[string]string{"@value": v.String(), "@type": "xsd:decimal"}
	case string, int, int32, int64, float32, float64, bool:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// escapeString escapes special characters in strings for RDF serialization.
func escapeString(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	s = strings.ReplaceAll(s, "\r", "\\r")
	s = strings.ReplaceAll(s, "\t", "\\t")
	return s
}
