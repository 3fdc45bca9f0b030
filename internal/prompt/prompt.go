// Package prompt gates risky hardening actions behind operator confirmation.
package prompt

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"golang.org/x/term"
)

// Confirmer asks the operator a yes/no question. Implementations must
// default to "no": declining is always safe, auto-applying never is.
type Confirmer interface {
	Confirm(question string) bool
}

// Terminal prompts on the controlling terminal. When stdin is not a TTY
// (cron, piped input that ran out) every question is answered "no" so an
// unattended run can never apply a gated action.
type Terminal struct {
	In  io.Reader
	Out io.Writer
	// isTerminal is overridable for tests.
	isTerminal func() bool
}

// NewTerminal returns a Confirmer reading from stdin.
func NewTerminal() *Terminal {
	return &Terminal{
		In:         os.Stdin,
		Out:        os.Stdout,
		isTerminal: func() bool { return term.IsTerminal(int(os.Stdin.Fd())) },
	}
}

// Confirm asks the question and returns true only for an explicit yes.
func (t *Terminal) Confirm(question string) bool {
	if t.isTerminal != nil && !t.isTerminal() {
		log.Printf("[WARN] Not a terminal, declining: %s", question)
		return false
	}

	fmt.Fprintf(t.Out, "%s [y/N]: ", question)
	reader := bufio.NewReader(t.In)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// Scripted answers questions from a fixed sequence. Used in tests; once the
// answers run out everything is declined.
type Scripted struct {
	Answers []bool
	// Asked records the questions in order, for assertions.
	Asked []string
}

// Confirm pops the next scripted answer.
func (s *Scripted) Confirm(question string) bool {
	s.Asked = append(s.Asked, question)
	if len(s.Answers) == 0 {
		return false
	}
	answer := s.Answers[0]
	s.Answers = s.Answers[1:]
	return answer
}
