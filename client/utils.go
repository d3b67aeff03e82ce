package client

import (
	"bufio"
	"context"
	"io"
	"strings"
)

// SubscribeToInput streams the non-empty lines of r. Lines of any length are
// accepted. The lines channel is closed at EOF, on a read error, or when ctx
// is done. A read error is sent on the error channel before the lines
// channel is closed.
func SubscribeToInput(ctx context.Context, r io.Reader) (<-chan string, <-chan error) {
	lines := make(chan string)
	errChan := make(chan error, 1)
	go func() {
		defer close(lines)

		reader := bufio.NewReader(r)
		for {
			line, err := readLine(reader)
			if line = strings.TrimSpace(line); len(line) != 0 {
				select {
				case lines <- line:
				case <-ctx.Done():
					return
				}
			}

			if err == io.EOF {
				return
			}

			if err != nil {
				errChan <- err
				return
			}
		}
	}()

	return lines, errChan
}

// readLine joins the parts that bufio.Reader.ReadLine returns for lines
// longer than its buffer.
func readLine(reader *bufio.Reader) (string, error) {
	var line []byte
	for {
		partOfLine, isPrefix, err := reader.ReadLine()
		line = append(line, partOfLine...)
		if err != nil || !isPrefix {
			return string(line), err
		}
	}
}
