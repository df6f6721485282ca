package llm_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/vetassist/internal/adapters/llm"
	"github.com/PabloGalante/vetassist/internal/domain"
)

func TestBuildPrompt(t *testing.T) {
	p := llm.BuildPrompt(domain.RequestRecord{
		Symptoms: []string{"Vomiting", " ", "Lethargy"},
		Notes:    "since this morning",
	})

	assert.Contains(t, p.System, "Vet Assistant")
	assert.NotContains(t, p.System, "photo")
	assert.Equal(t, "Symptoms reported:\n- Vomiting\n- Lethargy\n\nOwner notes:\nsince this morning", p.User)
}

func TestBuildPromptPhotoOnly(t *testing.T) {
	p := llm.BuildPrompt(domain.RequestRecord{PhotoURL: "gs://bucket/rex.jpg"})

	assert.Contains(t, p.System, "shared a photo")
	assert.Equal(t, "The owner shared content without any description.", p.User)
}

func TestMockResponder(t *testing.T) {
	r := llm.NewMockResponder()

	text, err := r.Respond(context.Background(), domain.RequestRecord{Symptoms: []string{"Coughing"}})
	require.NoError(t, err)
	assert.True(t, strings.Contains(text, "coughing"), text)

	text, err = r.Respond(context.Background(), domain.RequestRecord{Notes: "ate grass"})
	require.NoError(t, err)
	assert.NotEmpty(t, text)
}
