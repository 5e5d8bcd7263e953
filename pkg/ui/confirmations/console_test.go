package confirmations

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"Y\n", true},
		{"yes\n", true},
		{"  yes  \n", true},
		{"y", true},
		{"\n", false},
		{"n\n", false},
		{"no\n", false},
		{"YES\n", false},
		{"yep\n", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			var out bytes.Buffer
			d := NewConsoleDialog(strings.NewReader(tt.input), &out)

			got, err := d.Confirm("Remove the wrapper?")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, strings.HasPrefix(out.String(), "Remove the wrapper? [y/N]: "))
		})
	}
}

func TestConfirm_ReadsOneAnswerPerQuestion(t *testing.T) {
	var out bytes.Buffer
	d := NewConsoleDialog(strings.NewReader("y\nn\n"), &out)

	first, err := d.Confirm("first?")
	require.NoError(t, err)
	second, err := d.Confirm("second?")
	require.NoError(t, err)
	assert.True(t, first)
	assert.False(t, second)
}

func TestConfirm_ReadError(t *testing.T) {
	d := NewConsoleDialog(iotest.ErrReader(errors.New("broken pipe")), &bytes.Buffer{})
	_, err := d.Confirm("continue?")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken pipe")
}
