package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"

	"github.com/tonimelisma/docsync/internal/sync"
)

// errNotInteractive is returned when a prompt is needed but stdin or stdout
// is not a terminal.
var errNotInteractive = errors.New("input required but not running in a terminal")

// isInteractive reports whether both stdin and stdout are terminals.
func isInteractive() bool {
	return isTerminal(os.Stdin) && isTerminal(os.Stdout)
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// confirm asks a yes/no question. Non-interactive sessions answer no.
func confirm(title, description string) (bool, error) {
	if !isInteractive() {
		return false, nil
	}

	var ok bool

	err := huh.NewConfirm().
		Title(title).
		Description(description).
		Affirmative("Yes").
		Negative("No").
		Value(&ok).
		Run()
	if err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}

		return false, fmt.Errorf("prompt: %w", err)
	}

	return ok, nil
}

// promptText asks for one line of input. secret hides what is typed.
func promptText(title, placeholder, initial string, secret bool) (string, error) {
	if !isInteractive() {
		return "", errNotInteractive
	}

	value := initial

	input := huh.NewInput().
		Title(title).
		Placeholder(placeholder).
		Value(&value).
		Validate(func(s string) error {
			if strings.TrimSpace(s) == "" {
				return errors.New("a value is required")
			}

			return nil
		})

	if secret {
		input = input.EchoMode(huh.EchoModePassword)
	}

	if err := input.Run(); err != nil {
		return "", fmt.Errorf("prompt: %w", err)
	}

	return strings.TrimSpace(value), nil
}

// newProjectChoice is the select option that switches to free-text entry.
const newProjectChoice = "+ new project"

// promptProjectName offers the existing store names plus a free-text entry.
func promptProjectName(existing []string, suggestion string) (string, error) {
	if !isInteractive() {
		return "", errNotInteractive
	}

	if len(existing) == 0 {
		return promptText("Project name", "my-project", suggestion, false)
	}

	choice := newProjectChoice

	opts := huh.NewOptions(existing...)
	opts = append(opts, huh.NewOption(newProjectChoice, newProjectChoice))

	err := huh.NewSelect[string]().
		Title("Project name").
		Description("Pick an existing project or create a new one").
		Options(opts...).
		Value(&choice).
		Run()
	if err != nil {
		return "", fmt.Errorf("prompt: %w", err)
	}

	if choice != newProjectChoice {
		return choice, nil
	}

	return promptText("New project name", "my-project", suggestion, false)
}

// deletionConfirmer asks the user before a deleted file's document is
// removed from the store. With assumeYes every deletion is confirmed; in a
// non-interactive session without assumeYes every deletion is declined.
type deletionConfirmer struct {
	assumeYes bool
}

var _ sync.Confirmer = deletionConfirmer{}

func (d deletionConfirmer) ConfirmDelete(_ context.Context, relPath string) (bool, error) {
	if d.assumeYes {
		return true, nil
	}

	return confirm(
		fmt.Sprintf("%s was deleted locally.", relPath),
		"Remove it from the document store too?",
	)
}
