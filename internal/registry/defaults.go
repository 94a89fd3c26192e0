package registry

import (
	"time"

	"github.com/phrazzld/flashcards-ai-queue/internal/domain"
)

// Built-in app codes.
const (
	FlashcardsAppCode = "flashcards_app_001"
	GenericAppCode    = "generic_ai_001"
)

// Default returns the registry used when no app table is configured.
func Default() *Registry {
	flashcards, err := domain.NewAppProfile(
		FlashcardsAppCode,
		"FlashCards App",
		[]string{
			"generate_flashcard",
			"explain_concept",
			"create_quiz",
			"summarize_content",
			"generate_card_from_description",
		},
		domain.RateLimit{Count: 100, Window: time.Hour},
		1000,
		0.7,
	)
	if err != nil {
		panic(err)
	}

	generic, err := domain.NewAppProfile(
		GenericAppCode,
		"Generic AI",
		[]string{"prompt"},
		domain.RateLimit{Count: 50, Window: time.Hour},
		1500,
		0.8,
	)
	if err != nil {
		panic(err)
	}

	r, err := New(flashcards, generic)
	if err != nil {
		panic(err)
	}
	return r
}
