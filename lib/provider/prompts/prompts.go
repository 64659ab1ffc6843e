// Package prompts embeds the chat prompt templates used by the OpenAI provider.
package prompts

import "embed"

//go:embed *.txt
var FS embed.FS
