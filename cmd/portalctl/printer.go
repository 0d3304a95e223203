package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/schooldesk/portal/internal/session"
)

// printer renders navigation and notifications as terminal lines. It is the
// CLI's Navigator and Notifier.
type printer struct {
	mu sync.Mutex
	w  io.Writer
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w}
}

var noticePrefix = map[session.NoticeLevel]string{
	session.NoticeInfo:    "i",
	session.NoticeSuccess: "✓",
	session.NoticeError:   "✗",
}

func (p *printer) Navigate(path string) {
	p.Printf("→ %s\n", path)
}

func (p *printer) Notify(level session.NoticeLevel, message string) {
	prefix, ok := noticePrefix[level]
	if !ok {
		prefix = "-"
	}
	p.Printf("%s %s\n", prefix, message)
}

func (p *printer) Printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, format, args...)
}

// formatRemaining renders a countdown as m:ss.
func formatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

var errInputClosed = errors.New("input closed")

// prompter reads answers line by line from the command's input.
type prompter struct {
	out   *printer
	lines <-chan string
}

func newPrompter(in io.Reader, out *printer) *prompter {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
	}()
	return &prompter{out: out, lines: lines}
}

// Ask prints label and waits for the next line.
func (p *prompter) Ask(ctx context.Context, label string) (string, error) {
	p.out.Printf("%s: ", label)
	select {
	case line, ok := <-p.lines:
		if !ok {
			return "", errInputClosed
		}
		return line, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// valueOrAsk returns value, or asks for it when empty.
func (p *prompter) valueOrAsk(ctx context.Context, value, label string) (string, error) {
	if value != "" {
		return value, nil
	}
	return p.Ask(ctx, label)
}
