package console

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// InputKind classifies a line of user input.
type InputKind int

const (
	// InputMessage is conversation content.
	InputMessage InputKind = iota
	// InputExit ends the program.
	InputExit
	// InputReset clears the conversation.
	InputReset
)

const (
	commandExit  = "EXIT"
	commandReset = "RESET"
	filePrefix   = "@"
	maxLineSize  = 1024 * 1024
)

// Input is one unit of user input.
type Input struct {
	Kind InputKind
	Text string
}

// Reader turns console lines into user input. Blank lines are skipped, EXIT
// and RESET are commands in any case, and "@path" is replaced by the contents
// of the file at path.
type Reader struct {
	scanner  *bufio.Scanner
	out      io.Writer
	styles   styles
	readFile func(string) ([]byte, error)
}

// NewReader reads lines from in. Prompts and file errors go to out, which may be nil.
func NewReader(in io.Reader, out io.Writer) *Reader {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	if out == nil {
		out = io.Discard
	}
	return &Reader{
		scanner:  scanner,
		out:      out,
		styles:   newStyles(out),
		readFile: os.ReadFile,
	}
}

// Next blocks until the next meaningful input. End of input reads as EXIT.
func (r *Reader) Next() (Input, error) {
	for {
		fmt.Fprint(r.out, "\n"+r.styles.prompt.Render(">")+" ")
		if !r.scanner.Scan() {
			if err := r.scanner.Err(); err != nil {
				return Input{}, fmt.Errorf("read input: %w", err)
			}
			return Input{Kind: InputExit}, nil
		}

		line := strings.TrimSpace(r.scanner.Text())
		switch {
		case line == "":
			continue
		case strings.EqualFold(line, commandExit):
			return Input{Kind: InputExit}, nil
		case strings.EqualFold(line, commandReset):
			return Input{Kind: InputReset}, nil
		case strings.HasPrefix(line, filePrefix) && len(line) > len(filePrefix):
			text, ok := r.fromFile(strings.TrimPrefix(line, filePrefix))
			if !ok {
				continue
			}
			return Input{Kind: InputMessage, Text: text}, nil
		}
		return Input{Kind: InputMessage, Text: line}, nil
	}
}

func (r *Reader) fromFile(path string) (string, bool) {
	data, err := r.readFile(path)
	if err != nil {
		fmt.Fprintln(r.out, r.styles.errText.Render("Unable to access file: "+path))
		return "", false
	}
	if strings.TrimSpace(string(data)) == "" {
		fmt.Fprintln(r.out, r.styles.warning.Render("File is empty: "+path))
		return "", false
	}
	return string(data), true
}
