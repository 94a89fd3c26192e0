// Package together provides a generation.Completer backed by the Together AI
// chat completions endpoint, which follows the OpenAI wire format.
package together
