package prompter

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

var (
	in  = bufio.NewReader(os.Stdin)
	out io.Writer = os.Stdout
)

// SetIO swaps the prompt input and output, used by tests and non-interactive runs
func SetIO(r io.Reader, w io.Writer) {
	in = bufio.NewReader(r)
	out = w
}

// PromptString prompts user for a string input
func PromptString(label string) (string, error) {
	fmt.Fprint(out, label)
	input, err := in.ReadString('\n')
	if err != nil && input == "" {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

// PromptPassword prompts user for a password (hidden input)
func PromptPassword(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return PromptString(label)
	}

	fmt.Fprint(out, label)
	bytepw, err := term.ReadPassword(fd)
	if err != nil {
		return "", err
	}
	fmt.Fprintln(out)

	return string(bytepw), nil
}

// PromptConfirm prompts user for yes/no confirmation
func PromptConfirm(label string) (bool, error) {
	fmt.Fprint(out, label+" (y/n) ")
	input, err := in.ReadString('\n')
	if err != nil && input == "" {
		return false, err
	}

	response := strings.TrimSpace(strings.ToLower(input))
	return response == "y" || response == "yes", nil
}

// PromptSelect prompts user to select from options
func PromptSelect(label string, options []string) (int, error) {
	fmt.Fprintln(out, label)
	for i, opt := range options {
		fmt.Fprintf(out, "%d) %s\n", i+1, opt)
	}

	fmt.Fprint(out, "Select option: ")
	input, err := in.ReadString('\n')
	if err != nil && input == "" {
		return -1, err
	}

	var selection int
	if _, err := fmt.Sscanf(strings.TrimSpace(input), "%d", &selection); err != nil {
		return -1, err
	}

	if selection < 1 || selection > len(options) {
		return -1, fmt.Errorf("invalid selection")
	}

	return selection - 1, nil
}
