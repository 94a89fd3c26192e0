// Package generation defines the boundary between the job queue and external
// AI/LLM completion providers.
//
// A Completer turns a Request into an Outcome. Outcomes are tagged: a success
// carries the generated text, while a failure is classified as transient
// (worth retrying) or permanent. Provider adapters live under
// internal/platform (Gemini, Together AI); this package also shapes the prompt
// sent for each request type.
package generation
