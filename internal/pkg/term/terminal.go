// Package term обеспечивает построчный ввод-вывод оператора поверх терминала.
package term

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
	"golang.org/x/xerrors"
)

// DefaultWidth используется, когда ширину терминала узнать нельзя.
const DefaultWidth = 80

// Terminal читает строки оператора и пишет вывод консоли.
type Terminal struct {
	in      *bufio.Reader
	out     io.Writer
	stdinfd int
	stdout  int
}

// NewTerminal создает терминал поверх stdin/stdout процесса.
func NewTerminal() *Terminal {
	return &Terminal{
		in:      bufio.NewReader(os.Stdin),
		out:     os.Stdout,
		stdinfd: int(os.Stdin.Fd()),
		stdout:  int(os.Stdout.Fd()),
	}
}

// NewPipe создает терминал поверх произвольных потоков, без TTY.
func NewPipe(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{in: bufio.NewReader(in), out: out, stdinfd: -1, stdout: -1}
}

// Out возвращает поток вывода.
func (t *Terminal) Out() io.Writer {
	return t.out
}

// Interactive сообщает, подключен ли ввод к терминалу.
func (t *Terminal) Interactive() bool {
	return t.stdinfd >= 0 && term.IsTerminal(t.stdinfd)
}

// Width возвращает ширину вывода в колонках.
func (t *Terminal) Width() int {
	if t.stdout < 0 || !term.IsTerminal(t.stdout) {
		return DefaultWidth
	}
	w, _, err := term.GetSize(t.stdout)
	if err != nil || w <= 0 {
		return DefaultWidth
	}
	return w
}

// ReadLine печатает приглашение и читает строку без перевода строки.
// На конце ввода возвращает io.EOF.
func (t *Terminal) ReadLine(prompt string) (string, error) {
	if prompt != "" {
		fmt.Fprint(t.out, prompt)
	}
	line, err := t.in.ReadString('\n')
	if err != nil {
		if err == io.EOF && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		if err == io.EOF {
			return "", io.EOF
		}
		return "", xerrors.Errorf("failed to read line: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// ReadSecret запрашивает секрет без эха. Без TTY читает обычную строку.
func (t *Terminal) ReadSecret(prompt string) (string, error) {
	if !t.Interactive() {
		return t.ReadLine(prompt)
	}
	fmt.Fprint(t.out, prompt)
	secret, err := term.ReadPassword(t.stdinfd)
	if err != nil {
		return "", xerrors.Errorf("failed to read secret: %w", err)
	}
	fmt.Fprintln(t.out)
	return strings.TrimSpace(string(secret)), nil
}
