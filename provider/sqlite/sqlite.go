// Package sqlite implements core.Provider over an embedded SQLite database
// using the cgo-free modernc driver. Records are persisted document-style:
// queryable keys live in dedicated columns, the full record as a JSON doc
// column, which keeps the schema stable as record shapes evolve.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/mindfold/solace/core"
)

// Provider is the direct-store backend of core.Provider.
type Provider struct {
	db *sql.DB
}

// New opens or creates a SQLite database at the given path and bootstraps
// the schema. Use ":memory:" for an ephemeral store in tests.
func New(dbPath string) (*Provider, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// The modernc driver serializes writes per connection; a single
	// connection also keeps ":memory:" databases coherent.
	db.SetMaxOpenConns(1)

	p := &Provider{db: db}
	if err := p.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return p, nil
}

// Close releases the underlying database handle.
func (p *Provider) Close() error { return p.db.Close() }

// newID generates a time-ordered record id. ulid.Make uses the package's
// locked entropy source, so concurrent writers are safe.
func newID() string {
	return ulid.Make().String()
}

func (p *Provider) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS questions (
		serial_number INTEGER PRIMARY KEY,
		doc           TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS scores (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		doc        TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_scores_user ON scores(user_id, created_at DESC);

	CREATE TABLE IF NOT EXISTS chats (
		session_id   TEXT PRIMARY KEY,
		user_id      TEXT NOT NULL,
		score_doc_id TEXT,
		created_at   INTEGER NOT NULL,
		updated_at   INTEGER NOT NULL,
		turns        TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chats_user ON chats(user_id);
	`
	_, err := p.db.Exec(schema)
	return err
}

// Seed loads the given question set if the questions table is empty. It is
// idempotent and safe to call on every startup.
func (p *Provider) Seed(ctx context.Context, questions []core.Question) error {
	var count int
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions`).Scan(&count); err != nil {
		return fmt.Errorf("count questions: %w", err)
	}
	if count > 0 {
		return nil
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed tx: %w", err)
	}
	defer tx.Rollback()
	for _, q := range questions {
		doc, err := json.Marshal(q)
		if err != nil {
			return fmt.Errorf("marshal question %d: %w", q.SerialNumber, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO questions (serial_number, doc) VALUES (?, ?)`,
			q.SerialNumber, string(doc)); err != nil {
			return fmt.Errorf("insert question %d: %w", q.SerialNumber, err)
		}
	}
	return tx.Commit()
}

// GetQuestions returns all questionnaire items ordered by serial number.
func (p *Provider) GetQuestions(ctx context.Context) ([]core.Question, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT doc FROM questions ORDER BY serial_number ASC`)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	var questions []core.Question
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		var q core.Question
		if err := json.Unmarshal([]byte(doc), &q); err != nil {
			return nil, fmt.Errorf("decode question: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// CreateScore persists a new score record and returns its assigned id.
func (p *Provider) CreateScore(ctx context.Context, rec *core.ScoreRecord) (string, error) {
	stored := *rec
	stored.ID = newID()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	stored.UpdatedAt = stored.CreatedAt
	if stored.UserID == "" {
		stored.UserID = core.AnonymousUser
	}

	doc, err := json.Marshal(stored)
	if err != nil {
		return "", fmt.Errorf("marshal score: %w", err)
	}
	// UnixNano keeps created_at ordering numeric; text timestamps sort
	// lexicographically and misorder trimmed fractional seconds.
	if _, err := p.db.ExecContext(ctx,
		`INSERT INTO scores (id, user_id, created_at, doc) VALUES (?, ?, ?, ?)`,
		stored.ID, stored.UserID, stored.CreatedAt.UnixNano(), string(doc)); err != nil {
		return "", fmt.Errorf("insert score: %w", err)
	}
	return stored.ID, nil
}

// UpdateFollowUp overwrites the follow-up list on an existing score record.
// Returns core.ErrNotFound when no record matches id.
func (p *Provider) UpdateFollowUp(ctx context.Context, id string, followUp []int) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin followup tx: %w", err)
	}
	defer tx.Rollback()

	var doc string
	err = tx.QueryRowContext(ctx, `SELECT doc FROM scores WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("score %q: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("load score: %w", err)
	}

	var rec core.ScoreRecord
	if err := json.Unmarshal([]byte(doc), &rec); err != nil {
		return fmt.Errorf("decode score: %w", err)
	}
	rec.FollowUp = followUp
	rec.UpdatedAt = time.Now().UTC()

	updated, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal score: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE scores SET doc = ? WHERE id = ?`, string(updated), id); err != nil {
		return fmt.Errorf("update score: %w", err)
	}
	return tx.Commit()
}

// GetScoresByUser returns the user's score records, most recent first. An
// unknown user yields an empty slice, not an error.
func (p *Provider) GetScoresByUser(ctx context.Context, userID string) ([]core.ScoreRecord, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT doc FROM scores WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query scores: %w", err)
	}
	defer rows.Close()

	var records []core.ScoreRecord
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		var rec core.ScoreRecord
		if err := json.Unmarshal([]byte(doc), &rec); err != nil {
			return nil, fmt.Errorf("decode score: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetChatBySession returns the session transcript, or (nil, nil) when the
// session does not exist.
func (p *Provider) GetChatBySession(ctx context.Context, sessionID string) (*core.ChatSession, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT session_id, user_id, score_doc_id, created_at, updated_at, turns FROM chats WHERE session_id = ?`,
		sessionID)
	session, err := scanChat(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

// GetChatsByUser returns all chat sessions denormalized to the user. An
// unknown user yields an empty slice, not an error.
func (p *Provider) GetChatsByUser(ctx context.Context, userID string) ([]core.ChatSession, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT session_id, user_id, score_doc_id, created_at, updated_at, turns FROM chats WHERE user_id = ? ORDER BY updated_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}
	defer rows.Close()

	var sessions []core.ChatSession
	for rows.Next() {
		session, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	return sessions, rows.Err()
}

// UpsertChatMessage appends one turn to the session transcript, creating the
// session if absent. Create-if-absent + append run in a single transaction,
// so concurrent writers for the same session serialize at the storage layer.
func (p *Provider) UpsertChatMessage(ctx context.Context, msg core.ChatMessage) error {
	now := time.Now().UTC()
	turn := core.ChatTurn{Role: msg.Role, Content: msg.Content, Timestamp: now}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin chat tx: %w", err)
	}
	defer tx.Rollback()

	var turnsDoc string
	err = tx.QueryRowContext(ctx, `SELECT turns FROM chats WHERE session_id = ?`, msg.SessionID).Scan(&turnsDoc)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		userID := msg.UserID
		if userID == "" {
			userID = core.AnonymousUser
		}
		doc, err := json.Marshal([]core.ChatTurn{turn})
		if err != nil {
			return fmt.Errorf("marshal turns: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chats (session_id, user_id, score_doc_id, created_at, updated_at, turns) VALUES (?, ?, ?, ?, ?, ?)`,
			msg.SessionID, userID, msg.ScoreDocID,
			now.UnixNano(), now.UnixNano(), string(doc)); err != nil {
			return fmt.Errorf("insert chat: %w", err)
		}
	case err != nil:
		return fmt.Errorf("load chat: %w", err)
	default:
		var turns []core.ChatTurn
		if err := json.Unmarshal([]byte(turnsDoc), &turns); err != nil {
			return fmt.Errorf("decode turns: %w", err)
		}
		turns = append(turns, turn)
		doc, err := json.Marshal(turns)
		if err != nil {
			return fmt.Errorf("marshal turns: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE chats SET turns = ?, updated_at = ? WHERE session_id = ?`,
			string(doc), now.UnixNano(), msg.SessionID); err != nil {
			return fmt.Errorf("append turn: %w", err)
		}
	}
	return tx.Commit()
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanChat(row rowScanner) (*core.ChatSession, error) {
	var (
		session          core.ChatSession
		scoreDocID       sql.NullString
		created, updated int64
		turnsDoc         string
	)
	if err := row.Scan(&session.SessionID, &session.UserID, &scoreDocID, &created, &updated, &turnsDoc); err != nil {
		return nil, err
	}
	session.ScoreDocID = scoreDocID.String
	session.CreatedAt = time.Unix(0, created).UTC()
	session.UpdatedAt = time.Unix(0, updated).UTC()
	if err := json.Unmarshal([]byte(turnsDoc), &session.Turns); err != nil {
		return nil, fmt.Errorf("decode turns: %w", err)
	}
	return &session, nil
}

// Interface compliance (compile-time assertion)
var _ core.Provider = (*Provider)(nil)
