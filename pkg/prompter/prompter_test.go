package prompter

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromptString(t *testing.T) {
	var buf bytes.Buffer
	SetIO(strings.NewReader("  hello world \n"), &buf)

	got, err := PromptString("Title: ")
	require.NoError(t, err)

	assert.Equal(t, "hello world", got)
	assert.Equal(t, "Title: ", buf.String())
}

func TestPromptStringWithoutNewline(t *testing.T) {
	SetIO(strings.NewReader("last"), &bytes.Buffer{})

	got, err := PromptString("> ")
	require.NoError(t, err)
	assert.Equal(t, "last", got)
}

func TestPromptConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"maybe\n", false},
	}

	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			SetIO(strings.NewReader(tt.input), &bytes.Buffer{})
			got, err := PromptConfirm("Publish anyway?")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPromptConfirmEOF(t *testing.T) {
	SetIO(strings.NewReader(""), &bytes.Buffer{})

	_, err := PromptConfirm("Continue?")
	assert.Error(t, err)
}

func TestPromptSelect(t *testing.T) {
	var buf bytes.Buffer
	SetIO(strings.NewReader("2\n"), &buf)

	idx, err := PromptSelect("Status", []string{"pending", "resolved"})
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Contains(t, buf.String(), "2) resolved")

	SetIO(strings.NewReader("9\n"), &bytes.Buffer{})
	_, err = PromptSelect("Status", []string{"pending"})
	assert.Error(t, err)
}
