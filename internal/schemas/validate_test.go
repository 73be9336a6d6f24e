package schemas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const personSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["name"],
	"properties": {
		"name": {"type": "string"},
		"age": {"type": "integer"}
	}
}`

func TestValidateJSONStringValid(t *testing.T) {
	assert.NoError(t, ValidateJSONString(personSchema, `{"name": "test"}`))
}

func TestValidateJSONStringMissingRequiredField(t *testing.T) {
	err := ValidateJSONString(personSchema, `{"age": 30}`)
	require.Error(t, err)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.NotEmpty(t, validationErr.Errors)
	assert.Contains(t, validationErr.Error(), "name")
}

func TestValidateJSONStringWrongType(t *testing.T) {
	err := ValidateJSONString(personSchema, `{"name": "test", "age": "thirty"}`)
	require.Error(t, err)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "age", validationErr.Errors[0].Field)
}

func TestValidateJSONStringBrokenSchema(t *testing.T) {
	err := ValidateJSONString(`{ not json }`, `{"name": "test"}`)
	require.Error(t, err)

	var loadErr *SchemaLoadError
	assert.ErrorAs(t, err, &loadErr)
}

func TestValidateJSONStringNestedFieldPath(t *testing.T) {
	schema := `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type": "object",
		"required": ["verdict"],
		"properties": {
			"verdict": {
				"type": "object",
				"required": ["decision"],
				"properties": {
					"decision": {"type": "string"}
				}
			}
		}
	}`

	err := ValidateJSONString(schema, `{"verdict": {}}`)
	require.Error(t, err)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.NotEmpty(t, validationErr.Errors)
	assert.Contains(t, validationErr.Errors[0].Field, "verdict")
}

func TestValidationErrorMessageListsFields(t *testing.T) {
	err := &ValidationError{
		Errors: []FieldError{
			{Field: "summary", Message: "is required"},
			{Field: "confidence", Message: "must be a number"},
		},
	}

	msg := err.Error()
	assert.Contains(t, msg, "validation failed")
	assert.Contains(t, msg, "summary")
	assert.Contains(t, msg, "confidence")
}
