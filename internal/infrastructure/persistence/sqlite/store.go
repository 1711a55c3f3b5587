package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"berryBot/internal/domain"
)

// Store keeps custom commands and the moderation audit log in one SQLite
// database.
type Store struct {
	db *sql.DB
}

func NewStore(dbPath string) (*Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite: empty db path")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite: creating dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	const customCommandsTable = `
CREATE TABLE IF NOT EXISTS custom_commands (
	channel TEXT NOT NULL,
	name TEXT NOT NULL,
	response TEXT NOT NULL,
	aliases TEXT,
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (channel, name)
);`

	if _, err := db.Exec(customCommandsTable); err != nil {
		return fmt.Errorf("sqlite: migrate custom_commands: %w", err)
	}

	const moderationLogTable = `
CREATE TABLE IF NOT EXISTS moderation_log (
	id TEXT PRIMARY KEY,
	channel TEXT NOT NULL,
	username TEXT,
	user_id TEXT,
	message TEXT,
	category TEXT NOT NULL,
	score REAL NOT NULL,
	punishment TEXT NOT NULL,
	duration_seconds INTEGER,
	decided_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_moderation_log_channel ON moderation_log(channel, decided_at DESC);`

	if _, err := db.Exec(moderationLogTable); err != nil {
		return fmt.Errorf("sqlite: migrate moderation_log: %w", err)
	}

	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ----- Custom commands -----

func (s *Store) UpsertCustomCommand(ctx context.Context, cmd *domain.CustomCommand) error {
	if cmd == nil {
		return fmt.Errorf("sqlite: custom command nil")
	}

	if cmd.UpdatedAt.IsZero() {
		cmd.UpdatedAt = time.Now().UTC()
	}

	const stmt = `
INSERT INTO custom_commands (channel, name, response, aliases, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(channel, name) DO UPDATE SET
	response=excluded.response,
	aliases=excluded.aliases,
	updated_at=excluded.updated_at;
`

	_, err := s.db.ExecContext(
		ctx,
		stmt,
		domain.NormalizeChannel(cmd.Channel),
		strings.ToLower(strings.TrimSpace(cmd.Name)),
		cmd.Response,
		encodeStringSlice(cmd.Aliases),
		cmd.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: upsert custom command: %w", err)
	}

	return nil
}

func (s *Store) GetCustomCommand(ctx context.Context, channel, name string) (*domain.CustomCommand, error) {
	const query = `
SELECT channel, name, response, aliases, updated_at
FROM custom_commands
WHERE channel = ? AND LOWER(name) = LOWER(?)
LIMIT 1;
`

	row := s.db.QueryRowContext(ctx, query, domain.NormalizeChannel(channel), name)

	record, err := scanCustomCommand(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite: get custom command: %w", err)
	}
	return record, nil
}

func (s *Store) ListCustomCommands(ctx context.Context, channel string) ([]*domain.CustomCommand, error) {
	const query = `
SELECT channel, name, response, aliases, updated_at
FROM custom_commands
WHERE channel = ?
ORDER BY name;
`

	rows, err := s.db.QueryContext(ctx, query, domain.NormalizeChannel(channel))
	if err != nil {
		return nil, fmt.Errorf("sqlite: list custom commands: %w", err)
	}
	defer rows.Close()

	var cmds []*domain.CustomCommand
	for rows.Next() {
		record, err := scanCustomCommand(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan custom command: %w", err)
		}
		cmds = append(cmds, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list custom command rows: %w", err)
	}

	return cmds, nil
}

func (s *Store) DeleteCustomCommand(ctx context.Context, channel, name string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM custom_commands WHERE channel = ? AND LOWER(name) = LOWER(?)`,
		domain.NormalizeChannel(channel), name,
	)
	if err != nil {
		return fmt.Errorf("sqlite: delete custom command: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCustomCommand(row rowScanner) (*domain.CustomCommand, error) {
	var record domain.CustomCommand
	var aliasesRaw sql.NullString
	var updatedAt sql.NullTime

	if err := row.Scan(&record.Channel, &record.Name, &record.Response, &aliasesRaw, &updatedAt); err != nil {
		return nil, err
	}
	record.Aliases = decodeStringSlice(aliasesRaw.String)
	record.UpdatedAt = updatedAt.Time
	return &record, nil
}

// ----- Moderation log -----

func (s *Store) SaveFlaggedMessage(ctx context.Context, msg domain.FlaggedMessage) error {
	if msg.ID == "" {
		return fmt.Errorf("sqlite: flagged message without id")
	}
	decidedAt := msg.DecidedAt
	if decidedAt.IsZero() {
		decidedAt = time.Now().UTC()
	}

	const stmt = `
INSERT INTO moderation_log (id, channel, username, user_id, message, category, score, punishment, duration_seconds, decided_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`

	_, err := s.db.ExecContext(
		ctx,
		stmt,
		msg.ID,
		domain.NormalizeChannel(msg.Channel),
		msg.Username,
		msg.UserID,
		msg.Text,
		string(msg.Verdict.Category),
		msg.Verdict.Score,
		string(msg.Verdict.Punishment.Kind),
		int64(msg.Verdict.Punishment.Duration/time.Second),
		decidedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: save flagged message: %w", err)
	}
	return nil
}

// ListFlaggedMessages returns the newest entries first. An empty channel
// lists every channel.
func (s *Store) ListFlaggedMessages(ctx context.Context, channel string, limit int) ([]domain.FlaggedMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
SELECT id, channel, username, user_id, message, category, score, punishment, duration_seconds, decided_at
FROM moderation_log
WHERE (? = '' OR channel = ?)
ORDER BY decided_at DESC
LIMIT ?;
`

	channel = domain.NormalizeChannel(channel)
	rows, err := s.db.QueryContext(ctx, query, channel, channel, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list flagged messages: %w", err)
	}
	defer rows.Close()

	var out []domain.FlaggedMessage
	for rows.Next() {
		var (
			record           domain.FlaggedMessage
			username, userID sql.NullString
			message          sql.NullString
			category, kind   string
			durationSeconds  sql.NullInt64
			decidedAt        sql.NullTime
		)
		if err := rows.Scan(
			&record.ID,
			&record.Channel,
			&username,
			&userID,
			&message,
			&category,
			&record.Verdict.Score,
			&kind,
			&durationSeconds,
			&decidedAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scan flagged message: %w", err)
		}

		record.Username = username.String
		record.UserID = userID.String
		record.Text = message.String
		record.Verdict.Flagged = true
		record.Verdict.Category = domain.Category(category)
		record.Verdict.Punishment = domain.Punishment{
			Kind:     domain.PunishmentKind(kind),
			Duration: time.Duration(durationSeconds.Int64) * time.Second,
		}
		record.DecidedAt = decidedAt.Time

		out = append(out, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list flagged message rows: %w", err)
	}

	return out, nil
}

func encodeStringSlice(values []string) interface{} {
	clean := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			clean = append(clean, v)
		}
	}
	if len(clean) == 0 {
		return nil
	}
	b, err := json.Marshal(clean)
	if err != nil {
		return nil
	}
	return string(b)
}

func decodeStringSlice(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil
	}
	return values
}

var (
	_ domain.CustomCommandRepository = (*Store)(nil)
	_ domain.ModerationLogRepository = (*Store)(nil)
)
