package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
)

// prompter asks on the terminal before replacing an existing file.
// Extractions run in parallel, so questions are serialized.
type prompter struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer

	// sticky is set once the user answers "all" or "none".
	sticky *bool
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out}
}

func (p *prompter) ask(path string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sticky != nil {
		return *p.sticky
	}
	for {
		fmt.Fprintf(p.out, "%s already exists. Overwrite? [y]es, [n]o, [a]ll, n[o]ne: ", path)
		line, err := p.in.ReadString('\n')
		answer := strings.ToLower(strings.TrimSpace(line))
		switch answer {
		case "y", "yes":
			return true
		case "n", "no":
			return false
		case "a", "all":
			p.remember(true)
			return true
		case "o", "none":
			p.remember(false)
			return false
		}
		if err != nil {
			// Input closed without an answer.
			p.remember(false)
			return false
		}
	}
}

func (p *prompter) remember(v bool) {
	p.sticky = &v
}
