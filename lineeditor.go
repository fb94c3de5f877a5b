// =============================================================================
// lineeditor.go - Line Input With Cancellation
// =============================================================================
//
// This file implements line input for the console. It detects whether the
// terminal is interactive (TTY) or not (piped input, a script feeding hex
// commands) and selects the input method:
//
//   - Interactive mode: ergochat/readline, with Emacs keybindings and a
//     persistent history so the last commands sent to the device are one
//     arrow key away.
//   - Non-interactive mode: bufio.Reader, printing the prompt manually.
//
// Reading a line blocks until the user presses Enter. The session loop must
// still react to an interrupt while it waits, so reads happen on a separate
// goroutine (lineSource) and the session selects on the result or on
// shutdown.
//
// =============================================================================

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ergochat/readline"
	"golang.org/x/term"
)

const (
	// historyFileName is the history file in the user's home directory.
	historyFileName = ".esp_console_history"

	// historySize is the maximum number of history entries to retain.
	historySize = 500

	// maxLineLength bounds one line of piped input, newline included.
	maxLineLength = 1 << 20
)

// errLineTooLong is returned by GetLine for a piped line longer than
// maxLineLength. The line is discarded; the next call reads the one after.
var errLineTooLong = fmt.Errorf("input line longer than %d bytes, ignored", maxLineLength)

// LineEditor wraps line editing with dual-mode operation.
//
// In interactive mode it uses ergochat/readline; in non-interactive mode
// (piped input) it falls back to a bufio.Reader.
type LineEditor struct {
	// interactive is true when stdin and stdout are a TTY.
	interactive bool

	// rl is the readline instance used in interactive mode, nil otherwise.
	rl *readline.Instance

	// reader reads lines in non-interactive mode, nil otherwise.
	reader *bufio.Reader

	// out receives the prompt in non-interactive mode.
	out io.Writer

	// closeOnce guards rl.Close. rl itself is never cleared, since the
	// lineSource pump may still be inside Readline when Close runs.
	closeOnce sync.Once
}

// NewLineEditor creates a LineEditor for the process's stdin/stdout.
// historyPath overrides the default ~/.esp_console_history.
func NewLineEditor(historyPath string) *LineEditor {
	// GO CONCEPT: TTY Detection
	// -------------------------
	// golang.org/x/term.IsTerminal() checks whether a file descriptor is
	// connected to a terminal. os.Stdin.Fd() returns uintptr; IsTerminal
	// wants int. Both ends must be a terminal for readline to own the
	// screen; "esp-console > log.txt" still reads from the keyboard but
	// should not get escape sequences in its output.
	//
	// Compare with Python: sys.stdin.isatty() and sys.stdout.isatty().
	isInteractive := term.IsTerminal(int(os.Stdin.Fd())) &&
		term.IsTerminal(int(os.Stdout.Fd()))

	if !isInteractive {
		return newPipedLineEditor(os.Stdin, os.Stdout)
	}

	if historyPath == "" {
		historyPath = defaultHistoryPath()
	}

	rl, err := readline.NewFromConfig(&readline.Config{
		HistoryFile:            historyPath,
		HistoryLimit:           historySize,
		DisableAutoSaveHistory: true,
		Prompt:                 "",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: readline init failed (%v), using basic input\n", err)
		return newPipedLineEditor(os.Stdin, os.Stdout)
	}

	return &LineEditor{
		interactive: true,
		rl:          rl,
	}
}

// newPipedLineEditor creates a non-interactive editor reading from in and
// writing prompts to out.
func newPipedLineEditor(in io.Reader, out io.Writer) *LineEditor {
	return &LineEditor{
		interactive: false,
		reader:      bufio.NewReader(in),
		out:         out,
	}
}

// defaultHistoryPath returns ~/.esp_console_history, or a relative path when
// the home directory is unknown.
func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return historyFileName
	}
	return filepath.Join(home, historyFileName)
}

// GetLine reads a line of input with the given prompt.
//
// Returns ("", io.EOF) on Ctrl-D, Ctrl-C at the prompt, or when piped input
// is exhausted.
func (le *LineEditor) GetLine(prompt string) (string, error) {
	if le.interactive {
		return le.getInteractiveLine(prompt)
	}
	return le.getNonInteractiveLine(prompt)
}

func (le *LineEditor) getInteractiveLine(prompt string) (string, error) {
	le.rl.SetPrompt(prompt)

	line, err := le.rl.Readline()
	if err != nil {
		// readline owns the terminal in raw mode, so Ctrl-C arrives here
		// as ErrInterrupt rather than as SIGINT.
		if errors.Is(err, readline.ErrInterrupt) {
			return "", io.EOF
		}
		return "", err
	}

	if trimmed := strings.TrimSpace(line); trimmed != "" {
		le.rl.SaveToHistory(trimmed)
	}
	return line, nil
}

// getNonInteractiveLine reads one line, without its "\n" or "\r\n".
//
// GO CONCEPT: ReadSlice and Bounded Lines
// ---------------------------------------
// bufio.Scanner gives up for good once a line outgrows its buffer, which
// would end the console on one oversized paste. ReadSlice instead hands
// back the line in buffer-sized chunks (bufio.ErrBufferFull between them),
// so an oversized line can be drained and dropped while reading continues
// with the next one.
//
// Compare with Python: sys.stdin.readline(limit) in a loop until the
// returned text ends with a newline.
func (le *LineEditor) getNonInteractiveLine(prompt string) (string, error) {
	fmt.Fprint(le.out, prompt)

	var line []byte
	tooLong := false
	for {
		chunk, err := le.reader.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(chunk) > maxLineLength {
				tooLong = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}

		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		if err != nil && len(line) == 0 && !tooLong {
			return "", io.EOF
		}
		break
	}

	if tooLong {
		return "", errLineTooLong
	}
	text := strings.TrimSuffix(string(line), "\n")
	return strings.TrimSuffix(text, "\r"), nil
}

// Close saves history and releases the terminal. Safe to call repeatedly
// and concurrently with GetLine.
func (le *LineEditor) Close() {
	le.closeOnce.Do(func() {
		if le.rl != nil {
			le.rl.Close()
		}
	})
}

// IsInteractive reports whether readline is in use.
func (le *LineEditor) IsInteractive() bool {
	return le.interactive
}

// =============================================================================
// Cancellable Reads
// =============================================================================

// errInputCanceled is returned by lineSource.Next when shutdown wins the
// race against the user pressing Enter.
var errInputCanceled = errors.New("input canceled")

// lineReader is the part of LineEditor the pump needs.
type lineReader interface {
	GetLine(prompt string) (string, error)
}

type lineResult struct {
	line string
	err  error
}

// lineSource runs blocking GetLine calls on its own goroutine.
//
// GO CONCEPT: Turning a Blocking Call Into a select Case
// ------------------------------------------------------
// There is no portable way to interrupt a goroutine blocked in a read from
// the terminal. Instead the read runs on a helper goroutine that reports
// through a channel, and the caller selects on that channel and on a
// "done" channel. If done wins, the read is left pending; its line is not
// lost but handed to the next Next call.
//
// Compare with Python: asyncio.wait({read_task, shutdown_event.wait()},
// return_when=FIRST_COMPLETED), leaving read_task running.
type lineSource struct {
	reader   lineReader
	requests chan string
	results  chan lineResult

	// pending is only touched by the goroutine calling Next.
	pending bool

	closeOnce sync.Once
}

func newLineSource(reader lineReader) *lineSource {
	ls := &lineSource{
		reader:   reader,
		requests: make(chan string),
		results:  make(chan lineResult, 1),
	}
	go ls.loop()
	return ls
}

func (ls *lineSource) loop() {
	for prompt := range ls.requests {
		line, err := ls.reader.GetLine(prompt)
		ls.results <- lineResult{line: line, err: err}
	}
}

// Next prompts for and returns one line, or errInputCanceled as soon as done
// is closed.
func (ls *lineSource) Next(done <-chan struct{}, prompt string) (string, error) {
	if !ls.pending {
		select {
		case ls.requests <- prompt:
			ls.pending = true
		case <-done:
			return "", errInputCanceled
		}
	}

	select {
	case r := <-ls.results:
		ls.pending = false
		return r.line, r.err
	case <-done:
		return "", errInputCanceled
	}
}

// Close stops the pump once its current read, if any, returns.
func (ls *lineSource) Close() {
	ls.closeOnce.Do(func() { close(ls.requests) })
}
