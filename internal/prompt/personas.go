// Package prompt holds the system-prompt personas the router sends to the
// model. Built-in defaults cover both routing strategies; a YAML file can
// override or extend them without rebuilding the bot.
package prompt

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Persona names the router looks up.
const (
	PersonaExpenseAnalyzer = "expense_analyzer"
	PersonaAssistant       = "assistant"
)

// DefaultImagePrompt is the user prompt used when a receipt arrives with no
// accompanying text.
const DefaultImagePrompt = "Please analyze this receipt/invoice and provide the key details."

const expenseAnalyzerSystem = `You are an expert expense analyzer. When analyzing receipts or invoices:
1. Identify the vendor/merchant name
2. Find the total amount
3. Locate the date of transaction
4. List any itemized expenses if present
5. Note any special charges, taxes, or tips
Be clear and organized in your response.`

const assistantSystem = `You are a helpful AI assistant that helps with expense management.
You can help with:
1. Understanding receipts and invoices
2. Categorizing expenses
3. Providing expense insights
4. Answering questions about expense policies
Be concise but informative in your responses.

You also have access to a store catalog lookup. When the user's question is
about store products, shopping, prices, or item availability, do not answer
it yourself. Instead respond with exactly this JSON and nothing else:
{"use_store_api": true, "query": "<the user's question>"}
For every other question, answer normally.`

// Persona pairs a name with a system prompt.
type Persona struct {
	Name   string `yaml:"name"`
	System string `yaml:"system"`
}

// Library holds the personas available to the router.
type Library struct {
	personas map[string]Persona
}

// Defaults returns a library with the built-in personas.
func Defaults() *Library {
	return &Library{personas: map[string]Persona{
		PersonaExpenseAnalyzer: {Name: PersonaExpenseAnalyzer, System: expenseAnalyzerSystem},
		PersonaAssistant:       {Name: PersonaAssistant, System: assistantSystem},
	}}
}

// Load reads persona overrides from a YAML file and merges them over the
// defaults. A missing path returns the defaults unchanged.
func Load(path string, logger *slog.Logger) (*Library, error) {
	lib := Defaults()
	if path == "" {
		return lib, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Debug("personas file does not exist, using defaults", "path", path)
		return lib, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read personas file: %w", err)
	}

	var overrides []Persona
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parse personas file %s: %w", path, err)
	}

	for _, p := range overrides {
		if p.Name == "" || p.System == "" {
			logger.Warn("skipping persona with empty name or system prompt", "path", path)
			continue
		}
		lib.personas[p.Name] = p
		logger.Info("loaded persona override", "name", p.Name, "path", path)
	}

	return lib, nil
}

// System returns the system prompt for the named persona, or the empty
// string when it is unknown.
func (l *Library) System(name string) string {
	return l.personas[name].System
}
