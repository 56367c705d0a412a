package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB with fixloop-specific helpers.
type DB struct {
	*sql.DB
	path string
}

// Open creates or opens a SQLite database at the given path.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	d := &DB{DB: sqlDB, path: path}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return d, nil
}

// OpenMemory creates an in-memory SQLite database (useful for testing).
func OpenMemory() (*DB, error) {
	sqlDB, err := sql.Open("sqlite", ":memory:?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory database: %w", err)
	}

	d := &DB{DB: sqlDB, path: ":memory:"}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return d, nil
}

// migrate runs all schema migrations.
func (d *DB) migrate() error {
	_, err := d.Exec(schema)
	return err
}

// schema contains the full database schema. New tables are added here.
const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    category TEXT NOT NULL,
    input_text TEXT NOT NULL DEFAULT '',
    image_caption TEXT NOT NULL DEFAULT '',
    symptoms TEXT NOT NULL DEFAULT '[]',
    known_facts TEXT NOT NULL DEFAULT '{}',
    status TEXT NOT NULL CHECK(status IN ('questioning','complete','uncertain')),
    belief TEXT NOT NULL DEFAULT '{}',
    asked_questions TEXT NOT NULL DEFAULT '[]',
    final_cause TEXT,
    final_confidence REAL,
    resolution_outcome INTEGER,
    tutorial_selected_id TEXT,
    created_at DATETIME NOT NULL DEFAULT (datetime('now')),
    completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at);

CREATE TABLE IF NOT EXISTS belief_snapshots (
    session_id TEXT NOT NULL REFERENCES sessions(id),
    seq INTEGER NOT NULL,
    belief TEXT NOT NULL,
    trigger_event TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT (datetime('now')),
    PRIMARY KEY (session_id, seq)
);

CREATE TABLE IF NOT EXISTS question_interactions (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES sessions(id),
    question_id TEXT NOT NULL,
    question_text TEXT NOT NULL DEFAULT '',
    answer TEXT,
    entropy_before REAL,
    entropy_after REAL,
    belief_change TEXT,
    asked_at DATETIME NOT NULL DEFAULT (datetime('now')),
    answered_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_interactions_session ON question_interactions(session_id);
CREATE INDEX IF NOT EXISTS idx_interactions_question ON question_interactions(question_id);

CREATE TABLE IF NOT EXISTS learned_patterns (
    id TEXT PRIMARY KEY,
    category TEXT NOT NULL,
    symptom_key TEXT NOT NULL,
    symptoms TEXT NOT NULL,
    cause TEXT NOT NULL,
    support_count INTEGER NOT NULL CHECK(support_count >= 1),
    success_rate REAL NOT NULL CHECK(success_rate >= 0 AND success_rate <= 1),
    confidence REAL NOT NULL CHECK(confidence >= 0 AND confidence <= 1),
    approved INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT (datetime('now')),
    updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
    UNIQUE(category, symptom_key, cause)
);

CREATE INDEX IF NOT EXISTS idx_patterns_category ON learned_patterns(category, approved);

CREATE TABLE IF NOT EXISTS learned_questions (
    id TEXT PRIMARY KEY,
    category TEXT NOT NULL,
    text TEXT NOT NULL,
    affected_causes TEXT NOT NULL DEFAULT '[]',
    yes_updates TEXT NOT NULL DEFAULT '{}',
    no_updates TEXT NOT NULL DEFAULT '{}',
    info_gain_estimate REAL NOT NULL DEFAULT 0,
    cost_level TEXT NOT NULL DEFAULT 'safe',
    approved INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_learned_questions_category ON learned_questions(category, approved);

CREATE TABLE IF NOT EXISTS pattern_candidates (
    id TEXT PRIMARY KEY,
    category TEXT NOT NULL,
    symptom_key TEXT NOT NULL,
    symptoms TEXT NOT NULL,
    cause TEXT NOT NULL,
    observed_count INTEGER NOT NULL,
    success_count INTEGER NOT NULL,
    confidence REAL NOT NULL,
    supporting_sessions TEXT NOT NULL DEFAULT '[]',
    status TEXT NOT NULL DEFAULT 'pending' CHECK(status IN ('pending','approved','rejected')),
    created_at DATETIME NOT NULL DEFAULT (datetime('now')),
    UNIQUE(category, symptom_key, cause)
);

CREATE TABLE IF NOT EXISTS question_candidates (
    id TEXT PRIMARY KEY,
    category TEXT NOT NULL,
    based_on_question TEXT NOT NULL,
    text TEXT NOT NULL DEFAULT '',
    affected_causes TEXT NOT NULL DEFAULT '[]',
    yes_updates TEXT NOT NULL DEFAULT '{}',
    no_updates TEXT NOT NULL DEFAULT '{}',
    observed_count INTEGER NOT NULL,
    avg_gain REAL NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending' CHECK(status IN ('pending','approved','rejected')),
    created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS question_stats (
    question_id TEXT PRIMARY KEY,
    category TEXT NOT NULL DEFAULT '',
    times_asked INTEGER NOT NULL DEFAULT 0,
    times_skipped INTEGER NOT NULL DEFAULT 0,
    yes_count INTEGER NOT NULL DEFAULT 0,
    no_count INTEGER NOT NULL DEFAULT 0,
    uncertain_count INTEGER NOT NULL DEFAULT 0,
    avg_information_gain REAL NOT NULL DEFAULT 0,
    success_correlation REAL NOT NULL DEFAULT 0,
    low_value INTEGER NOT NULL DEFAULT 0,
    last_asked DATETIME
);

CREATE TABLE IF NOT EXISTS tutorials (
    id TEXT PRIMARY KEY,
    category TEXT NOT NULL,
    title TEXT NOT NULL,
    content TEXT NOT NULL DEFAULT '',
    keywords TEXT NOT NULL DEFAULT '[]',
    cause_tags TEXT NOT NULL DEFAULT '[]',
    difficulty TEXT NOT NULL DEFAULT '',
    source TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_tutorials_category ON tutorials(category);

CREATE TABLE IF NOT EXISTS tutorial_feedback (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    tutorial_id TEXT NOT NULL,
    solved INTEGER NOT NULL,
    rating REAL,
    created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_feedback_tutorial ON tutorial_feedback(tutorial_id);

CREATE TABLE IF NOT EXISTS learning_runs (
    id TEXT PRIMARY KEY,
    started_at DATETIME NOT NULL DEFAULT (datetime('now')),
    finished_at DATETIME,
    discovered_patterns INTEGER NOT NULL DEFAULT 0,
    discovered_questions INTEGER NOT NULL DEFAULT 0,
    skipped_patterns INTEGER NOT NULL DEFAULT 0,
    skipped_questions INTEGER NOT NULL DEFAULT 0
);
`
