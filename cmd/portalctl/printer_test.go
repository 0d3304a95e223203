package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/schooldesk/portal/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatRemaining(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{in: 0, want: "0:00"},
		{in: -5 * time.Second, want: "0:00"},
		{in: 59 * time.Second, want: "0:59"},
		{in: 200 * time.Second, want: "3:20"},
		{in: 299 * time.Second, want: "4:59"},
		{in: 10 * time.Minute, want: "10:00"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, formatRemaining(tt.in))
		})
	}
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf)

	p.Navigate("/login")
	p.Notify(session.NoticeSuccess, "done")
	p.Notify(session.NoticeError, "failed")
	p.Notify(session.NoticeInfo, "fyi")

	assert.Equal(t, "→ /login\n✓ done\n✗ failed\ni fyi\n", buf.String())
}

func TestPrompter(t *testing.T) {
	var buf bytes.Buffer
	prompt := newPrompter(strings.NewReader("  first  \n"), newPrinter(&buf))
	ctx := context.Background()

	got, err := prompt.valueOrAsk(ctx, "given", "Ignored")
	require.NoError(t, err)
	assert.Equal(t, "given", got)

	got, err = prompt.Ask(ctx, "Name")
	require.NoError(t, err)
	assert.Equal(t, "first", got)

	_, err = prompt.Ask(ctx, "Again")
	assert.ErrorIs(t, err, errInputClosed)

	assert.Equal(t, "Name: Again: ", buf.String())
}
