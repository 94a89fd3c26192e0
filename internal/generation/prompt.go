package generation

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CardFromDescriptionType is the request type whose payload is a JSON card
// set description rather than free text.
const CardFromDescriptionType = "generate_card_from_description"

var promptTemplates = map[string]string{
	"generate_flashcard": "Create a flashcard for the following topic. Provide a clear question on one side " +
		"and a comprehensive answer on the other side. Topic: %s",
	"explain_concept":   "Explain the following concept in simple, clear terms that are easy to understand: %s",
	"create_quiz":       "Create a quiz with 5 multiple choice questions about: %s. Include the correct answers.",
	"summarize_content": "Summarize the following content in a concise and organized manner: %s",
}

// CardSetDescription is the payload of a generate_card_from_description request.
type CardSetDescription struct {
	SetDescription string        `json:"set_description"`
	ExampleCards   []ExampleCard `json:"example_cards"`
}

// ExampleCard is one existing card of the set.
type ExampleCard struct {
	Information string `json:"information"`
	Answer      string `json:"answer"`
}

// BuildPrompt turns a request payload into the prompt sent to the provider.
// Types without a template pass the payload through unchanged.
func BuildPrompt(requestType, payload string) string {
	if requestType == CardFromDescriptionType {
		return cardFromDescriptionPrompt(payload)
	}
	if tmpl, ok := promptTemplates[requestType]; ok {
		return fmt.Sprintf(tmpl, payload)
	}
	return payload
}

func cardFromDescriptionPrompt(payload string) string {
	var desc CardSetDescription
	if err := json.Unmarshal([]byte(payload), &desc); err != nil {
		return "Create a flashcard based on this description: " + payload
	}

	var b strings.Builder
	b.WriteString("Create a new flashcard based on the following flashcard set description and examples.\n\n")
	b.WriteString("SET DESCRIPTION:\n")
	b.WriteString(desc.SetDescription)
	b.WriteString("\n\nEXISTING CARD EXAMPLES:\n")
	if len(desc.ExampleCards) == 0 {
		b.WriteString("No existing cards provided.\n")
	}
	for i, card := range desc.ExampleCards {
		fmt.Fprintf(&b, "\nExample %d:\nInformation: %s\nAnswer: %s\n",
			i+1, orNA(card.Information), orNA(card.Answer))
	}
	b.WriteString(`

INSTRUCTIONS:
1. Create a NEW flashcard that fits the theme and style of the set
2. The flashcard should complement the existing cards without duplicating them
3. Follow the same format and difficulty level as the examples
4. Respond ONLY with valid JSON in this exact format:

{
  "information": "Your question or topic text here",
  "answer": "Your answer or explanation text here"
}

Do not include any other text, explanations, or formatting outside the JSON response.`)
	return b.String()
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
