// Package modelstore persists finalized Markov models in a SQLite database.
// It is a thin collaborator around the markov package's Snapshot contract:
// Save writes a named snapshot, Load rebuilds an already-finalized model.
// The package works with any database/sql driver that speaks SQLite; both
// modernc.org/sqlite and github.com/mattn/go-sqlite3 are exercised by the
// project's builds.
package modelstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/patrick-brian-mooney/markov-sentence-generator/pkg/markov"
)

// ErrModelNotFound indicates that no model with the requested name exists.
var ErrModelNotFound = errors.New("modelstore: model not found")

// contextSep joins context tokens into the stored context_text column. It
// matches the markov package's token constraint: no tokenizer emits the
// unit separator, so joined contexts are unambiguous.
const contextSep = "\x1f"

// ModelInfo holds the stored metadata for one persisted model.
type ModelInfo struct {
	Id              int
	Name            string
	Order           int
	CharacterTokens bool
}

// SetupSchema initializes the model storage tables in the provided
// database. It is idempotent and safe to call on an already-initialized
// database.
func SetupSchema(db *sql.DB) error {
	const (
		schemaModels = `
CREATE TABLE IF NOT EXISTS sg_models (
    model_id INTEGER PRIMARY KEY,
    model_name TEXT NOT NULL UNIQUE,
    model_order INTEGER NOT NULL,
    character_tokens INTEGER NOT NULL DEFAULT 0
);
`
		schemaStarts = `
CREATE TABLE IF NOT EXISTS sg_starts (
    model_id INTEGER NOT NULL,
    position INTEGER NOT NULL,
    token TEXT NOT NULL,
    PRIMARY KEY (model_id, position)
);
`
		schemaContexts = `
CREATE TABLE IF NOT EXISTS sg_contexts (
    context_id INTEGER PRIMARY KEY,
    model_id INTEGER NOT NULL,
    context_text TEXT NOT NULL,
    UNIQUE (model_id, context_text)
);
`
		schemaTransitions = `
CREATE TABLE IF NOT EXISTS sg_transitions (
    model_id INTEGER NOT NULL,
    context_id INTEGER NOT NULL,
    token TEXT NOT NULL,
    probability REAL NOT NULL,
    PRIMARY KEY (model_id, context_id, token)
);
`
	)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	for _, schema := range []string{schemaModels, schemaStarts, schemaContexts, schemaTransitions} {
		if _, err = tx.Exec(schema); err != nil {
			return fmt.Errorf("could not create schema: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}
	return nil
}

// Store reads and writes finalized models in a SQLite database. It holds
// prepared statements for the hot lookup paths; call Close when done.
type Store struct {
	db            *sql.DB
	stmtGetModel  *sql.Stmt
	stmtGetModels *sql.Stmt
	logger        *slog.Logger
}

// NewStore creates a Store over db, pre-compiling its lookup statements.
// The schema must already exist; see SetupSchema.
func NewStore(db *sql.DB) (*Store, error) {
	stmtGetModel, err := db.Prepare(`SELECT model_id, model_order, character_tokens FROM sg_models WHERE model_name = ?;`)
	if err != nil {
		return nil, err
	}

	stmtGetModels, err := db.Prepare(`SELECT model_id, model_name, model_order, character_tokens FROM sg_models ORDER BY model_name;`)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:            db,
		stmtGetModel:  stmtGetModel,
		stmtGetModels: stmtGetModels,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, nil
}

// Close releases the prepared statements held by the Store.
func (s *Store) Close() {
	_ = s.stmtGetModel.Close()
	_ = s.stmtGetModels.Close()
}

// SetLogger sets the logger for the Store. By default, all logs are discarded.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Info retrieves the stored metadata for a single model by name.
func (s *Store) Info(ctx context.Context, name string) (ModelInfo, error) {
	info := ModelInfo{Name: name}
	var chars int
	err := s.stmtGetModel.QueryRowContext(ctx, name).Scan(&info.Id, &info.Order, &chars)
	if errors.Is(err, sql.ErrNoRows) {
		return ModelInfo{}, fmt.Errorf("%w: %q", ErrModelNotFound, name)
	}
	if err != nil {
		return ModelInfo{}, err
	}
	info.CharacterTokens = chars != 0
	return info, nil
}

// List returns metadata for every stored model, ordered by name.
func (s *Store) List(ctx context.Context) ([]ModelInfo, error) {
	rows, err := s.stmtGetModels.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var models []ModelInfo
	for rows.Next() {
		var info ModelInfo
		var chars int
		if err = rows.Scan(&info.Id, &info.Name, &info.Order, &chars); err != nil {
			return nil, err
		}
		info.CharacterTokens = chars != 0
		models = append(models, info)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return models, nil
}

// Save persists model under name, replacing any previous model with that
// name. The model must be finalized. The entire operation is performed
// within a transaction.
func (s *Store) Save(ctx context.Context, name string, model *markov.FrequencyModel) error {
	snap, err := model.Snapshot()
	if err != nil {
		return fmt.Errorf("cannot save model %q: %w", name, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction for save: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	chars := 0
	if snap.CharacterTokens {
		chars = 1
	}
	var modelID int
	err = tx.QueryRowContext(ctx, `
		INSERT INTO sg_models (model_name, model_order, character_tokens) VALUES (?, ?, ?)
		ON CONFLICT(model_name) DO UPDATE SET model_order = excluded.model_order, character_tokens = excluded.character_tokens
		RETURNING model_id;
	`, name, snap.Order, chars).Scan(&modelID)
	if err != nil {
		return fmt.Errorf("failed to upsert model %q: %w", name, err)
	}

	// Replace, don't merge: stored probabilities are already normalized, so
	// the old rows have to go before the new ones land.
	for _, table := range []string{"sg_transitions", "sg_contexts", "sg_starts"} {
		if _, err = tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE model_id = ?", table), modelID); err != nil {
			return fmt.Errorf("failed to clear %s for model %q: %w", table, name, err)
		}
	}

	stmtInsertStart, err := tx.PrepareContext(ctx, `INSERT INTO sg_starts (model_id, position, token) VALUES (?, ?, ?);`)
	if err != nil {
		return fmt.Errorf("failed to prepare start insert: %w", err)
	}
	defer func(stmt *sql.Stmt) {
		_ = stmt.Close()
	}(stmtInsertStart)

	for i, tok := range snap.Starts {
		if _, err = stmtInsertStart.ExecContext(ctx, modelID, i, tok); err != nil {
			return fmt.Errorf("failed to insert start token %q: %w", tok, err)
		}
	}

	stmtInsertContext, err := tx.PrepareContext(ctx, `INSERT INTO sg_contexts (model_id, context_text) VALUES (?, ?) RETURNING context_id;`)
	if err != nil {
		return fmt.Errorf("failed to prepare context insert: %w", err)
	}
	defer func(stmt *sql.Stmt) {
		_ = stmt.Close()
	}(stmtInsertContext)

	stmtInsertTransition, err := tx.PrepareContext(ctx, `INSERT INTO sg_transitions (model_id, context_id, token, probability) VALUES (?, ?, ?, ?);`)
	if err != nil {
		return fmt.Errorf("failed to prepare transition insert: %w", err)
	}
	defer func(stmt *sql.Stmt) {
		_ = stmt.Close()
	}(stmtInsertTransition)

	var transitionCount int
	for _, entry := range snap.Contexts {
		var contextID int
		contextText := strings.Join(entry.Context, contextSep)
		if err = stmtInsertContext.QueryRowContext(ctx, modelID, contextText).Scan(&contextID); err != nil {
			return fmt.Errorf("failed to insert context: %w", err)
		}
		for _, tr := range entry.Next {
			if _, err = stmtInsertTransition.ExecContext(ctx, modelID, contextID, tr.Token, tr.Probability); err != nil {
				return fmt.Errorf("failed to insert transition (%q -> %q): %w", contextText, tr.Token, err)
			}
			transitionCount++
		}
	}

	s.logger.InfoContext(ctx, "Model saved",
		slog.String("model_name", name),
		slog.Int("model_id", modelID),
		slog.Int("contexts", len(snap.Contexts)),
		slog.Int("transitions", transitionCount),
		slog.Int("start_tokens", len(snap.Starts)),
	)

	return tx.Commit()
}

// Load rebuilds the named model from the database. The returned model is
// already finalized and ready for generation.
func (s *Store) Load(ctx context.Context, name string, opts ...markov.ModelOption) (*markov.FrequencyModel, error) {
	info, err := s.Info(ctx, name)
	if err != nil {
		return nil, err
	}

	snap := &markov.Snapshot{
		Order:           info.Order,
		CharacterTokens: info.CharacterTokens,
	}

	rows, err := s.db.QueryContext(ctx, `SELECT token FROM sg_starts WHERE model_id = ? ORDER BY position;`, info.Id)
	if err != nil {
		return nil, fmt.Errorf("failed to query starts for model %q: %w", name, err)
	}
	for rows.Next() {
		var tok string
		if err = rows.Scan(&tok); err != nil {
			_ = rows.Close()
			return nil, err
		}
		snap.Starts = append(snap.Starts, tok)
	}
	_ = rows.Close()
	if err = rows.Err(); err != nil {
		return nil, err
	}

	// One join pulls the whole table; contexts arrive grouped so entries
	// can be assembled in a single pass.
	tRows, err := s.db.QueryContext(ctx, `
		SELECT c.context_text, t.token, t.probability
		FROM sg_contexts c JOIN sg_transitions t ON t.context_id = c.context_id AND t.model_id = c.model_id
		WHERE c.model_id = ?
		ORDER BY c.context_id;
	`, info.Id)
	if err != nil {
		return nil, fmt.Errorf("failed to query transitions for model %q: %w", name, err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(tRows)

	var current string
	var haveCurrent bool
	var entry markov.ContextEntry
	for tRows.Next() {
		var contextText, token string
		var probability float64
		if err = tRows.Scan(&contextText, &token, &probability); err != nil {
			return nil, err
		}
		if !haveCurrent || contextText != current {
			if haveCurrent {
				snap.Contexts = append(snap.Contexts, entry)
			}
			current = contextText
			haveCurrent = true
			entry = markov.ContextEntry{Context: strings.Split(contextText, contextSep)}
		}
		entry.Next = append(entry.Next, markov.Transition{Token: token, Probability: probability})
	}
	if haveCurrent {
		snap.Contexts = append(snap.Contexts, entry)
	}
	if err = tRows.Err(); err != nil {
		return nil, err
	}

	model, err := markov.FromSnapshot(snap, opts...)
	if err != nil {
		return nil, fmt.Errorf("stored model %q is not loadable: %w", name, err)
	}

	s.logger.InfoContext(ctx, "Model loaded",
		slog.String("model_name", name),
		slog.Int("model_id", info.Id),
		slog.Int("contexts", len(snap.Contexts)),
	)
	return model, nil
}

// Delete removes a model and all of its associated data from the database.
// Deleting a model that does not exist is not an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	info, err := s.Info(ctx, name)
	if errors.Is(err, ErrModelNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction for delete: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	for _, table := range []string{"sg_transitions", "sg_contexts", "sg_starts", "sg_models"} {
		if _, err = tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE model_id = ?", table), info.Id); err != nil {
			return fmt.Errorf("failed to remove rows from %s for model %q: %w", table, name, err)
		}
	}

	s.logger.InfoContext(ctx, "Model removed",
		slog.String("model_name", name),
		slog.Int("model_id", info.Id),
	)
	return tx.Commit()
}
