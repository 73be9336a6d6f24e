package llm

import (
	"fmt"
	"strings"
)

// ExtractionSchema describes a structured-output request: what task the
// model performs and which JSON fields it must return. The adjudicator,
// proposal copilot, and mission planner each define one.
type ExtractionSchema struct {
	Name        string
	Description string // task preamble, written as the system instruction
	Fields      []SchemaField
}

// SchemaField is one expected field in the model's JSON output.
type SchemaField struct {
	Name        string
	Type        string // type hint such as "string", "[]string", "map[string]string"
	Description string
	Required    bool
}

// BuildExtractionPrompt renders the schema and input into a prompt that
// demands bare JSON back.
func BuildExtractionPrompt(schema ExtractionSchema, inputText string) string {
	var sb strings.Builder

	sb.WriteString(schema.Description)
	sb.WriteString("\n\n")

	sb.WriteString("Return ONLY valid JSON matching this exact structure:\n{\n")
	for i, field := range schema.Fields {
		typeHint := field.Type
		if typeHint == "" {
			typeHint = "string"
		}
		requiredHint := ""
		if field.Required {
			requiredHint = " (required)"
		}
		sb.WriteString(fmt.Sprintf("  %q: %s%s", field.Name, typeHint, requiredHint))
		if field.Description != "" {
			sb.WriteString(" // " + field.Description)
		}
		if i < len(schema.Fields)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("}\n\n")

	sb.WriteString("IMPORTANT:\n")
	sb.WriteString("- Extract information directly from the text, do not invent or summarize.\n")
	sb.WriteString("- Return ONLY the JSON object, no markdown, no explanation, no code blocks.\n\n")

	sb.WriteString("Input text:\n\"\"\"\n")
	sb.WriteString(inputText)
	sb.WriteString("\n\"\"\"\n")

	return sb.String()
}
