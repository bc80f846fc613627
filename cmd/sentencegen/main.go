// Command sentencegen generates random (but often intelligible) text from a
// frequency analysis of one or more input texts. Models can be saved and
// reloaded, either as JSON snapshot files or as named entries in a SQLite
// database.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/natefinch/atomic"

	"github.com/patrick-brian-mooney/markov-sentence-generator/pkg/markov"
	"github.com/patrick-brian-mooney/markov-sentence-generator/pkg/modelstore"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// stringList collects repeated occurrences of a flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ", ") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

type options struct {
	inputs      stringList
	loadPath    string
	outputPath  string
	dbPath      string
	modelName   string
	order       int
	count       int
	chars       bool
	columns     int
	pauseSec    int
	breakChance float64
	html        bool
	verbose     bool
	quiet       bool
	showVersion bool
}

func parseOptions(args []string) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet("sentencegen", flag.ContinueOnError)
	fs.Var(&opts.inputs, "i", "input text `file` to train on (may be given multiple times)")
	fs.StringVar(&opts.loadPath, "l", "", "load a previously saved model `file` instead of training")
	fs.StringVar(&opts.outputPath, "o", "", "save the trained model to `file` as JSON")
	fs.StringVar(&opts.dbPath, "db", "", "SQLite database `path` for named model storage")
	fs.StringVar(&opts.modelName, "n", "", "model `name` in the database (save after training, or load when no -i)")
	fs.IntVar(&opts.order, "m", 1, "Markov chain length")
	fs.IntVar(&opts.count, "c", 1, "number of sentences to generate")
	fs.BoolVar(&opts.chars, "r", false, "treat individual characters as tokens instead of words")
	fs.IntVar(&opts.columns, "w", -1, "wrap output to `N` columns; -1 wraps to the terminal width, 0 disables wrapping")
	fs.IntVar(&opts.pauseSec, "p", 0, "pause `N` seconds between paragraphs")
	fs.Float64Var(&opts.breakChance, "b", 0.25, "probability of a paragraph break after each sentence")
	fs.BoolVar(&opts.html, "html", false, "emit an HTML fragment with paragraphs wrapped in <p> tags")
	fs.BoolVar(&opts.verbose, "v", false, "verbose logging")
	fs.BoolVar(&opts.quiet, "q", false, "only log errors")
	fs.BoolVar(&opts.showVersion, "version", false, "print version information and exit")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if opts.showVersion {
		return opts, nil
	}

	loadingFromDB := opts.dbPath != "" && opts.modelName != "" && len(opts.inputs) == 0
	if len(opts.inputs) == 0 && opts.loadPath == "" && !loadingFromDB {
		return nil, fmt.Errorf("input is required: use -i, -l, or -db with -n")
	}
	if opts.loadPath != "" {
		if len(opts.inputs) > 0 {
			return nil, fmt.Errorf("-i and -l cannot be combined; use one or the other")
		}
		if opts.order > 1 {
			return nil, fmt.Errorf("-m cannot be used with -l; the loaded model fixes the chain length")
		}
	}
	if opts.html && (opts.pauseSec > 0 || opts.columns > 0) {
		return nil, fmt.Errorf("-html is not compatible with -p or an explicit column width")
	}
	if opts.modelName != "" && opts.dbPath == "" {
		return nil, fmt.Errorf("-n requires -db")
	}
	return opts, nil
}

func main() {
	opts, err := parseOptions(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "sentencegen:", err)
		os.Exit(2)
	}
	if opts.showVersion {
		fmt.Printf("sentencegen %s (commit %s, built %s)\n", Version, Commit, BuildDate)
		return
	}

	logLevel := slog.LevelInfo
	switch {
	case opts.verbose:
		logLevel = slog.LevelDebug
	case opts.quiet:
		logLevel = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	if err := run(opts, logger); err != nil {
		logger.Error("Run failed", "error", err)
		os.Exit(1)
	}
}

func run(opts *options, logger *slog.Logger) error {
	ctx := context.Background()

	var store *modelstore.Store
	if opts.dbPath != "" {
		db, err := initDB(opts.dbPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer func() { _ = db.Close() }()

		if err = modelstore.SetupSchema(db); err != nil {
			return fmt.Errorf("failed to set up model schema: %w", err)
		}
		store, err = modelstore.NewStore(db)
		if err != nil {
			return fmt.Errorf("failed to create model store: %w", err)
		}
		defer store.Close()
		store.SetLogger(logger)
	}

	model, err := obtainModel(ctx, opts, store, logger)
	if err != nil {
		return err
	}

	if opts.outputPath != "" {
		if err := saveSnapshotFile(model, opts.outputPath); err != nil {
			return err
		}
		logger.Info("Model saved", "path", opts.outputPath)
	}
	if store != nil && opts.modelName != "" && len(opts.inputs) > 0 {
		if err := store.Save(ctx, opts.modelName, model); err != nil {
			return fmt.Errorf("failed to save model %q: %w", opts.modelName, err)
		}
	}

	gen, err := markov.NewGenerator(model)
	if err != nil {
		return err
	}
	gen.SetLogger(logger)

	if opts.html {
		frag, err := gen.HTMLFragment(opts.count, opts.breakChance)
		if err != nil {
			return err
		}
		fmt.Println(frag)
		return nil
	}

	stream, err := gen.ProduceStream(ctx, opts.count, opts.breakChance)
	if err != nil {
		return err
	}
	fmt.Println()
	for paragraph := range stream {
		started := time.Now()
		printParagraph(paragraph, opts.columns)
		if opts.pauseSec > 0 {
			remaining := time.Duration(opts.pauseSec)*time.Second - time.Since(started)
			if remaining > 0 {
				time.Sleep(remaining)
			}
		}
	}
	return nil
}

// obtainModel produces a finalized model from whichever source the flags
// selected: training files, a JSON snapshot, or the database.
func obtainModel(ctx context.Context, opts *options, store *modelstore.Store, logger *slog.Logger) (*markov.FrequencyModel, error) {
	if len(opts.inputs) > 0 {
		return trainModel(opts, logger)
	}
	if opts.loadPath != "" {
		return loadSnapshotFile(opts.loadPath, logger)
	}
	return store.Load(ctx, opts.modelName)
}

func trainModel(opts *options, logger *slog.Logger) (*markov.FrequencyModel, error) {
	var modelOpts []markov.ModelOption
	if opts.chars {
		modelOpts = append(modelOpts, markov.WithCharacterTokens())
	}
	model, err := markov.NewModel(opts.order, modelOpts...)
	if err != nil {
		return nil, err
	}
	model.SetLogger(logger)

	mode := markov.ModeWords
	if opts.chars {
		mode = markov.ModeCharacters
	}
	tokenizer := markov.NewTokenizer()

	// The whole corpus is analyzed as one text, so chains can cross file
	// boundaries just as they cross paragraph boundaries.
	var corpus strings.Builder
	for _, path := range opts.inputs {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read input file %q: %w", path, err)
		}
		corpus.Write(data)
		corpus.WriteString("\n")
		logger.Debug("Read training file", "path", path, "bytes", len(data))
	}

	tokens := tokenizer.Tokenize(corpus.String(), mode)
	if err := model.Train(tokens); err != nil {
		return nil, fmt.Errorf("training failed: %w", err)
	}
	if err := model.Finalize(); err != nil {
		return nil, fmt.Errorf("finalization failed: %w", err)
	}

	stats := model.Stats()
	logger.Info("Model trained",
		"order", opts.order,
		"tokens", len(tokens),
		"contexts", stats.Contexts,
		"vocabulary", stats.Vocabulary,
	)
	return model, nil
}

func loadSnapshotFile(path string, logger *slog.Logger) (*markov.FrequencyModel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open model file %q: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	snap, err := markov.ReadSnapshot(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file %q: %w", path, err)
	}
	model, err := markov.FromSnapshot(snap)
	if err != nil {
		return nil, fmt.Errorf("model file %q is not loadable: %w", path, err)
	}
	logger.Info("Model loaded", "path", path, "order", model.Order())
	return model, nil
}

func saveSnapshotFile(model *markov.FrequencyModel, path string) error {
	snap, err := model.Snapshot()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal model snapshot: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write model file %q: %w", path, err)
	}
	return nil
}
