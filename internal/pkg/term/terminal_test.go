package term

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipe(t *testing.T) {
	t.Run("Чтение строк", func(t *testing.T) {
		var out bytes.Buffer
		tm := NewPipe(strings.NewReader("/rooms\r\nhello\nlast"), &out)

		line, err := tm.ReadLine("> ")
		require.NoError(t, err)
		assert.Equal(t, "/rooms", line)

		line, err = tm.ReadLine("")
		require.NoError(t, err)
		assert.Equal(t, "hello", line)

		line, err = tm.ReadLine("")
		require.NoError(t, err)
		assert.Equal(t, "last", line, "Последняя строка без перевода строки не теряется")

		_, err = tm.ReadLine("")
		assert.ErrorIs(t, err, io.EOF)
		assert.Equal(t, "> ", out.String())
	})

	t.Run("Без TTY", func(t *testing.T) {
		tm := NewPipe(strings.NewReader("secret\n"), io.Discard)
		assert.False(t, tm.Interactive())
		assert.Equal(t, DefaultWidth, tm.Width())

		s, err := tm.ReadSecret("token: ")
		require.NoError(t, err)
		assert.Equal(t, "secret", s)
	})
}
