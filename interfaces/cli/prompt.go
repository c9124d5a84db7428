package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/felixgeelhaar/omni/domain/policy"
)

// ErrNoAnswer indicates that the input closed before an answer was given.
var ErrNoAnswer = errors.New("no answer on standard input")

// Prompter asks the user for confirmations and clarification answers on a
// line-oriented terminal. It implements policy.Confirmer.
type Prompter struct {
	mu     sync.Mutex
	in     *bufio.Reader
	out    io.Writer
	styles styles
}

var _ policy.Confirmer = (*Prompter)(nil)

// NewPrompter creates a prompter reading answers from in.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{
		in:     bufio.NewReader(in),
		out:    out,
		styles: newStyles(out),
	}
}

// Confirm shows the pending call and waits for y or yes. Anything else,
// including closed input, declines.
func (p *Prompter) Confirm(ctx context.Context, req policy.ConfirmationRequest) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintln(p.out, p.styles.warning.Render(fmt.Sprintf("⚠ %s wants to run (risk: %s)", req.ToolName, req.RiskLevel)))
	if req.Description != "" {
		fmt.Fprintln(p.out, p.styles.muted.Render("  "+req.Description))
	}
	if len(req.Args) > 0 {
		args, _ := json.MarshalIndent(req.Args, "  ", "  ")
		fmt.Fprintln(p.out, "  "+string(args))
	}
	fmt.Fprint(p.out, "Allow? [y/N]: ")

	line, err := p.readLine(ctx)
	if errors.Is(err, ErrNoAnswer) {
		fmt.Fprintln(p.out)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	switch strings.ToLower(line) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// Answer shows a clarification question and returns the first non-empty
// line typed in response.
func (p *Prompter) Answer(ctx context.Context, question string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintln(p.out, p.styles.bold.Render("? "+question))
	for {
		fmt.Fprint(p.out, "> ")
		line, err := p.readLine(ctx)
		if err != nil {
			return "", err
		}
		if line != "" {
			return line, nil
		}
	}
}

// readLine reads one trimmed line. The read itself cannot be interrupted;
// a cancelled context abandons it.
func (p *Prompter) readLine(ctx context.Context) (string, error) {
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := p.in.ReadString('\n')
		if err == io.EOF && line != "" {
			err = nil
		}
		ch <- result{line: strings.TrimSpace(line), err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		if errors.Is(r.err, io.EOF) {
			return "", ErrNoAnswer
		}
		return r.line, r.err
	}
}

// confirmerFor returns the gate answering confirmations in mode.
func confirmerFor(mode policy.ConfirmationMode, prompter *Prompter) policy.Confirmer {
	switch mode {
	case policy.ConfirmAuto:
		return policy.AutoConfirmer{}
	case policy.ConfirmDeny:
		return policy.DenyConfirmer{}
	default:
		return prompter
	}
}
