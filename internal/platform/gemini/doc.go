// Package gemini provides an implementation of the generation.Completer
// interface backed by Google's Gemini API.
//
// This package is an infrastructure adapter: it translates a
// generation.Request into a GenerateContent call through the
// google.golang.org/genai client and classifies the response. Rate limiting,
// server errors and deadlines are reported as transient outcomes so the
// worker pool can retry them; invalid requests, safety blocks and empty
// responses are permanent.
package gemini
