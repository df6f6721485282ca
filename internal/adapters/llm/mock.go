package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/PabloGalante/vetassist/internal/domain"
)

type MockResponder struct{}

func NewMockResponder() *MockResponder {
	return &MockResponder{}
}

func (m *MockResponder) Respond(_ context.Context, rec domain.RequestRecord) (string, error) {
	// A few fixed rules so local runs read like a real triage.
	if !rec.HasSymptoms() {
		return "Thanks for the update. Keep an eye on your pet and tell me if anything changes.", nil
	}
	return fmt.Sprintf(
		"Thanks for reporting %s. Keep your pet hydrated and resting, and see a vet if it lasts more than 24 hours.",
		strings.ToLower(strings.Join(rec.Symptoms, ", ")),
	), nil
}
