package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/smallnest/pdfqa/assistant"
)

// chat reads questions from in until EOF or "exit". "/history" prints the
// window and "/clear" forgets it.
func chat(ctx context.Context, a *assistant.Assistant, in io.Reader) error {
	printHeading("Chat (session " + a.Config().Session + ")")
	fmt.Println("Ask about the document. /history, /clear or exit.")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Print(questionStyle.Render("> "))
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		case "/history":
			history, err := a.History(ctx)
			if err != nil {
				return err
			}
			printHistory(history)
			continue
		case "/clear":
			if err := a.ClearSession(ctx, a.Config().Session); err != nil {
				return err
			}
			fmt.Println("history cleared")
			continue
		}

		out, err := a.Ask(ctx, line)
		switch {
		case errors.Is(err, context.Canceled):
			return nil
		case err != nil:
			fmt.Println(errorStyle.Render("error: " + err.Error()))
			continue
		}
		printAnswer(line, out)
	}
}
