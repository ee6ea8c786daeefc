package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/KentvTran/ftp-from-scratch-to-aws/internal/config"
	"github.com/KentvTran/ftp-from-scratch-to-aws/internal/logging"
)

const prompt = "ftp> "

const helpText = `Commands:
  LS            list files on the server
  GET <file>    download a file into the download directory
  PUT <path>    upload a local file
  EXIT          close the session
`

// Run starts the interactive client with the given configuration
func Run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting client", "server", cfg.ServerAddress)

	c, err := Dial(ctx, cfg)
	if err != nil {
		return err
	}

	fmt.Printf("Connected to %s\n", cfg.ServerAddress)
	return c.Interact(ctx, os.Stdin, os.Stdout)
}

// Interact reads commands from in until EXIT, end of input or ctx is done,
// which all end the session with EXIT. Errors from individual commands are
// printed and the loop continues unless the control connection is lost.
func (c *Client) Interact(ctx context.Context, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(out, prompt)

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return c.Exit()
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(out)
				return c.Exit()
			}
			line = l
		}

		done, err := c.execute(ctx, line, out)
		if err != nil {
			logging.LogError(nil, err, "client command")
			fmt.Fprintf(out, "Error: %v\n", err)
			if c.State() == StateClosed {
				return err
			}
		}
		if done {
			return nil
		}
	}
}

// execute runs one REPL line and reports whether the session is over
func (c *Client) execute(ctx context.Context, line string, out io.Writer) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}

	verb := strings.ToUpper(fields[0])
	args := fields[1:]

	switch verb {
	case "LS":
		listing, err := c.List(ctx)
		if err != nil {
			return false, err
		}
		if listing == "" {
			fmt.Fprintln(out, "(empty)")
			return false, nil
		}
		fmt.Fprint(out, listing)
		if !strings.HasSuffix(listing, "\n") {
			fmt.Fprintln(out)
		}

	case "GET":
		if len(args) != 1 {
			fmt.Fprintln(out, "Usage: GET <file>")
			return false, nil
		}
		path, n, err := c.Download(ctx, args[0], c.cfg.DownloadDir)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(out, "Downloaded %s (%d bytes)\n", path, n)

	case "PUT":
		if len(args) != 1 {
			fmt.Fprintln(out, "Usage: PUT <path>")
			return false, nil
		}
		n, err := c.Upload(ctx, args[0])
		if err != nil {
			return false, err
		}
		fmt.Fprintf(out, "Uploaded %s (%d bytes)\n", args[0], n)

	case "EXIT", "QUIT":
		fmt.Fprintln(out, "Goodbye")
		return true, c.Exit()

	case "HELP", "?":
		fmt.Fprint(out, helpText)

	default:
		fmt.Fprintf(out, "Unknown command %q, type HELP for a list\n", fields[0])
	}

	return false, nil
}
