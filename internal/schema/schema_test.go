package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvisSchemaLoads(t *testing.T) {
	s, err := Avis()
	require.NoError(t, err)
	require.NotEmpty(t, s.Fields)

	deadline, ok := s.Field("deadline")
	require.True(t, ok)
	assert.Equal(t, "date", deadline.Type)

	lots, ok := s.Field("lots")
	require.True(t, ok)
	assert.Equal(t, "json", lots.Type)

	for _, name := range []string{"reference", "organization", "budget_estimate", "keywords", "required_documents", "submission_address"} {
		_, ok := s.Field(name)
		assert.True(t, ok, "missing field %s", name)
	}
}

func TestDeepSchemaLoads(t *testing.T) {
	s, err := Deep()
	require.NoError(t, err)
	require.NotEmpty(t, s.Fields)

	for _, name := range []string{"tender_type", "institution", "total_estimate", "lots"} {
		_, ok := s.Field(name)
		assert.True(t, ok, "missing field %s", name)
	}
}

func TestPromptLines(t *testing.T) {
	s, err := Avis()
	require.NoError(t, err)

	lines := s.PromptLines()
	assert.Contains(t, lines, "- deadline (date):")
	assert.Contains(t, lines, "- lots (json):")
}
