package engine

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Answer is an operator's response to a confirmation prompt.
type Answer int

const (
	AnswerYes Answer = iota
	AnswerNo
	// AnswerAll confirms this item and every remaining item of the
	// current operation.
	AnswerAll
)

// Prompter asks the operator to confirm one mutating step. Implementations
// must keep asking until they get a usable answer.
type Prompter interface {
	Confirm(question string) (Answer, error)
}

// StdinPrompter reads yes/no/all answers from an input stream, re-prompting
// on anything else.
type StdinPrompter struct {
	In  io.Reader
	Out io.Writer

	reader *bufio.Reader
}

func (p *StdinPrompter) Confirm(question string) (Answer, error) {
	if p.reader == nil {
		p.reader = bufio.NewReader(p.In)
	}
	for {
		fmt.Fprintf(p.Out, "%s (yes/no/all): ", question)
		line, err := p.reader.ReadString('\n')
		if err != nil && line == "" {
			return AnswerNo, err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "yes":
			return AnswerYes, nil
		case "no":
			return AnswerNo, nil
		case "all":
			return AnswerAll, nil
		}
		fmt.Fprintln(p.Out, "Invalid input. Choose one of: yes, no, all")
		if err != nil {
			return AnswerNo, err
		}
	}
}
