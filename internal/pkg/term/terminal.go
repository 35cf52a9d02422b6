package term

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"
	"golang.org/x/xerrors"
)

// ErrNoChoice возвращается, когда пользователь не выбрал вариант.
var ErrNoChoice = xerrors.New("no option chosen")

// Terminal обеспечивает интерактивный выбор через терминал.
type Terminal struct {
	in      *bufio.Reader
	out     io.Writer
	stdinfd int
}

// NewTerminal создает Terminal поверх stdin и stdout.
func NewTerminal() *Terminal {
	return NewTerminalWithIO(os.Stdin, os.Stdout, int(os.Stdin.Fd()))
}

// NewTerminalWithIO создает Terminal с заданными потоками.
// fd используется только для проверки, является ли ввод терминалом.
func NewTerminalWithIO(in io.Reader, out io.Writer, fd int) *Terminal {
	return &Terminal{
		in:      bufio.NewReader(in),
		out:     out,
		stdinfd: fd,
	}
}

// Interactive сообщает, подключен ли ввод к терминалу.
func (t *Terminal) Interactive() bool {
	return term.IsTerminal(t.stdinfd)
}

// Choose выводит нумерованный список и читает выбор пользователя:
// номер варианта или его точное имя.
func (t *Terminal) Choose(prompt string, options []string) (string, error) {
	if len(options) == 0 {
		return "", ErrNoChoice
	}

	fmt.Fprintln(t.out, prompt)
	for i, opt := range options {
		fmt.Fprintf(t.out, "  %d) %s\n", i+1, opt)
	}
	fmt.Fprintf(t.out, "Enter number [1-%d]: ", len(options))

	line, err := t.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", xerrors.Errorf("failed to read choice: %w", err)
	}
	answer := strings.TrimSpace(line)
	if answer == "" {
		return "", ErrNoChoice
	}

	if n, err := strconv.Atoi(answer); err == nil {
		if n < 1 || n > len(options) {
			return "", xerrors.Errorf("choice %d is out of range 1-%d", n, len(options))
		}
		return options[n-1], nil
	}
	for _, opt := range options {
		if opt == answer {
			return opt, nil
		}
	}
	return "", xerrors.Errorf("unknown option %q", answer)
}
