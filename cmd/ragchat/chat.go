package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/bull/ragchat/internal/chain"
	"github.com/bull/ragchat/internal/history"
)

var (
	chatSession   string
	chatSkipIndex bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the indexed documents from the terminal",
	Long: `Rebuilds the index, then reads questions from stdin and streams the
answers to stdout. Turns are stored under --session; reusing a session
replays its earlier turns first. An empty line or EOF ends the chat.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatSession, "session", "s", "", "session identifier (default: a new random one)")
	chatCmd.Flags().BoolVar(&chatSkipIndex, "skip-index", false, "use the existing Qdrant collection without rebuilding it")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	a, err := newApp(ctx, slog.Default())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.prepare(ctx, chatSkipIndex); err != nil {
		return err
	}

	session := chatSession
	if session == "" {
		session = uuid.NewString()
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Session: %s\n", session)

	turns, err := a.chain.History(ctx, session)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	printTurns(out, turns)

	return repl(ctx.Done(), cmd.InOrStdin(), out, func(input string) error {
		_, err := a.chain.Ask(ctx, session, input, func(segment string) error {
			_, err := io.WriteString(out, segment)
			return err
		})
		fmt.Fprintln(out)
		return err
	})
}

// repl reads one question per line until EOF, an empty line or done.
// A failed turn is reported and the loop continues.
func repl(done <-chan struct{}, in io.Reader, out io.Writer, ask func(string) error) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			return nil
		}

		err := ask(input)
		select {
		case <-done:
			return nil
		default:
		}
		if errors.Is(err, chain.ErrGeneration) {
			fmt.Fprintf(out, "[answer interrupted: %v]\n", err)
			continue
		}
		if err != nil {
			fmt.Fprintf(out, "[error: %v]\n", err)
		}
	}
}

func printTurns(w io.Writer, turns []history.Turn) {
	for _, t := range turns {
		prefix := "> "
		if t.Role == history.RoleAssistant {
			prefix = ""
		}
		fmt.Fprintf(w, "%s%s\n", prefix, t.Content)
	}
}
