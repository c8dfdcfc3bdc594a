package cmd

import (
	"fmt"

	"github.com/AlecAivazis/survey/v2"
)

// Prompter asks the user to pick one entry (allows mocking in tests).
type Prompter interface {
	Select(message string, options []string) (int, error)
}

// SurveyPrompter implements Prompter using the survey library.
type SurveyPrompter struct{}

func (p *SurveyPrompter) Select(message string, options []string) (int, error) {
	idx := 0
	prompt := &survey.Select{
		Message:  message,
		Options:  options,
		PageSize: min(len(options), 15),
	}

	if err := survey.AskOne(prompt, &idx); err != nil {
		return 0, fmt.Errorf("prompt: %w", err)
	}

	return idx, nil
}

// DefaultPrompter is the prompter used in production.
var DefaultPrompter Prompter = &SurveyPrompter{}
