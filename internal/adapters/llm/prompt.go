package llm

import (
	"strings"

	"github.com/PabloGalante/vetassist/internal/domain"
)

const baseSystemPrompt = `
You are "Vet Assistant", an AI helper for pet owners who report symptoms of their pets.

Your role:
- You read what the owner reported and give a short first assessment.
- You say how urgent it looks and what the owner can do at home in the meantime.
- You are NOT a veterinarian and you do NOT give definitive diagnoses or prescribe medication.

General style guidelines:
- Answer in the SAME LANGUAGE as the owner.
- Be concise: 3–6 short paragraphs or bullet points max.
- Use simple, everyday language, not veterinary jargon.
- Start with the most likely explanations, then the warning signs to watch for.

Boundaries and safety:
- If the report mentions trouble breathing, seizures, heavy bleeding, poisoning or collapse, tell the owner to go to an emergency vet now.
- Never suggest human medication for animals.
`

const photoInstructions = `
The owner also shared a photo. You cannot see it; ask them to describe what it shows if it matters.
`

// Prompt represents the system prompt + the content to send as "user".
type Prompt struct {
	System string
	User   string
}

// BuildPrompt builds the system prompt and the user content from a request.
func BuildPrompt(rec domain.RequestRecord) Prompt {
	system := baseSystemPrompt
	if rec.PhotoURL != "" {
		system += "\n" + photoInstructions
	}

	var user strings.Builder
	var symptoms []string
	for _, s := range rec.Symptoms {
		if s = strings.TrimSpace(s); s != "" {
			symptoms = append(symptoms, s)
		}
	}
	if len(symptoms) > 0 {
		user.WriteString("Symptoms reported:\n- ")
		user.WriteString(strings.Join(symptoms, "\n- "))
		user.WriteString("\n")
	}
	if notes := strings.TrimSpace(rec.Notes); notes != "" {
		if user.Len() > 0 {
			user.WriteString("\n")
		}
		user.WriteString("Owner notes:\n")
		user.WriteString(notes)
	}
	if user.Len() == 0 {
		user.WriteString("The owner shared content without any description.")
	}

	return Prompt{
		System: system,
		User:   user.String(),
	}
}
