// Package file provides file-based implementations of driven port interfaces.
// These adapters read from the local filesystem.
//
// Adapters:
//   - Loader: resolves domain.Config from config.toml, .env and the environment
//   - PromptStore: user-editable LLM prompts
package file
