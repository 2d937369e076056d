package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	yesChoices = []string{"y", "yes", "1", "on", "true", "t"}
	noChoices  = []string{"n", "no", "0", "off", "false", "f"}
)

// Prompter asks the operator questions on a terminal
type Prompter interface {
	// Ask returns the operator's answer, or def when the answer is empty
	// and def is not empty. Empty answers without a default are asked again.
	Ask(name, def string) (string, error)
	// Confirm asks a yes/no question until the answer is understood
	Confirm(name string, def bool) (bool, error)
}

type linePrompter struct {
	in  *bufio.Reader
	out io.Writer
}

// New returns a Prompter reading answers from in and writing questions to out
func New(in io.Reader, out io.Writer) Prompter {
	return &linePrompter{in: bufio.NewReader(in), out: out}
}

func (p *linePrompter) Ask(name, def string) (string, error) {
	label := name
	if def != "" {
		label += fmt.Sprintf(" [%s]", def)
	}
	if strings.HasSuffix(name, "?") {
		label += " "
	} else {
		label += ": "
	}

	for {
		if _, err := fmt.Fprint(p.out, label); err != nil {
			return "", err
		}

		line, err := p.in.ReadString('\n')
		answer := strings.TrimSpace(line)
		if answer != "" {
			return answer, nil
		}
		if def != "" {
			return def, nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", fmt.Errorf("no answer to %q: input closed", name)
			}
			return "", fmt.Errorf("failed to read answer: %w", err)
		}
	}
}

func (p *linePrompter) Confirm(name string, def bool) (bool, error) {
	choice := noChoices[0]
	if def {
		choice = yesChoices[0]
	}

	for {
		answer, err := p.Ask(name+"?", choice)
		if err != nil {
			return false, err
		}
		if v, ok := ParseBool(answer); ok {
			return v, nil
		}
	}
}

// ParseBool interprets a yes/no answer. ok is false when the answer is
// neither a recognised yes nor a recognised no.
func ParseBool(answer string) (value bool, ok bool) {
	answer = strings.ToLower(strings.TrimSpace(answer))
	for _, c := range yesChoices {
		if answer == c {
			return true, true
		}
	}
	for _, c := range noChoices {
		if answer == c {
			return false, true
		}
	}
	return false, false
}
