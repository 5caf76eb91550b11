// Command pdfqa answers questions about a PDF with a local or hosted model.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/smallnest/pdfqa/assistant"
	"github.com/smallnest/pdfqa/config"
	"github.com/smallnest/pdfqa/log"
	"github.com/smallnest/pdfqa/server"
)

// demoQuestions are asked in order when no other mode is selected.
var demoQuestions = []string{
	"What is this document about?",
	"What is direct taxes?",
	"What is Amrit Kaal as Kartavya Kaal?",
	"What are Budget Estimates 2024-25?",
	"Who is Nirmala Sitharaman?",
	"What is PM Awas Yojana?",
}

const (
	demoPrompt = "Who is Elon Musk?"
	demoQuery  = "ASHA workers"
)

type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ", ") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

type options struct {
	pdf   string
	asks  stringList
	chat  bool
	serve bool
	debug bool
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: "+err.Error()))
		os.Exit(1)
	}
}

func run() error {
	// the dotenv file is read before flags so that flags override it
	cfg, err := config.Load(os.Getenv("PDFQA_ENV_FILE"))
	if err != nil {
		return err
	}

	var opts options
	fs := flag.NewFlagSet("pdfqa", flag.ExitOnError)
	cfg.RegisterFlags(fs)
	fs.StringVar(&opts.pdf, "pdf", "", "PDF (or text, HTML, CSV) file to ingest")
	fs.Var(&opts.asks, "ask", "question to ask; repeat for a conversation")
	fs.BoolVar(&opts.chat, "chat", false, "interactive chat after ingestion")
	fs.BoolVar(&opts.serve, "server", false, "serve the HTTP API")
	fs.BoolVar(&opts.debug, "debug", false, "shorthand for -log-level debug")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: pdfqa -pdf FILE [-ask QUESTION ...] [-chat] [-server]\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}

	if opts.debug {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	level, _ := log.ParseLevel(cfg.LogLevel)
	log.SetLogLevel(level)

	if opts.pdf == "" && !opts.serve && cfg.IndexPath == "" && cfg.VectorStore == config.VectorMemory {
		fs.Usage()
		return errors.New("nothing to answer from: give -pdf, -index or -server")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := assistant.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if opts.pdf != "" {
		report, err := a.Ingest(ctx, opts.pdf)
		if err != nil {
			return err
		}
		printIngest(report)
	}

	switch {
	case opts.serve:
		return server.New(a, server.WithIngestRoot(cfg.IngestRoot)).ListenAndServe(ctx, cfg.Addr)
	case opts.chat:
		return chat(ctx, a, os.Stdin)
	case len(opts.asks) > 0:
		return askAll(ctx, a, opts.asks)
	default:
		return demo(ctx, a)
	}
}

func askAll(ctx context.Context, a *assistant.Assistant, questions []string) error {
	for _, q := range questions {
		out, err := a.Ask(ctx, q)
		if err != nil {
			return err
		}
		printAnswer(q, out)
	}
	return nil
}

// demo runs the budget walkthrough: a direct model call, a raw
// similarity search, six chained questions and the remembered history.
func demo(ctx context.Context, a *assistant.Assistant) error {
	printHeading("Direct model call")
	resp, err := a.Generate(ctx, demoPrompt)
	if err != nil {
		return err
	}
	printQA(demoPrompt, resp)

	printHeading("Similarity search")
	results, err := a.SimilaritySearch(ctx, demoQuery, 0)
	if err != nil {
		return err
	}
	if len(results) > 0 {
		printSource(demoQuery, results[0])
	}

	printHeading("Conversation")
	if err := askAll(ctx, a, demoQuestions); err != nil {
		return err
	}

	history, err := a.History(ctx)
	if err != nil {
		return err
	}
	printHeading(fmt.Sprintf("Last %d turns", a.Config().Window))
	printHistory(history)
	return nil
}
