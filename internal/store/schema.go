package store

// schemaSQL is the DDL for all tables.
const schemaSQL = `
-- One row per processed PDF
CREATE TABLE IF NOT EXISTS documents (
    id INTEGER PRIMARY KEY,
    path TEXT NOT NULL UNIQUE,
    filename TEXT NOT NULL,
    total_pages INTEGER NOT NULL,
    api_calls INTEGER NOT NULL DEFAULT 0,
    total_questions INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Enriched questions; payload holds the full JSON record
CREATE TABLE IF NOT EXISTS questions (
    id INTEGER PRIMARY KEY,
    document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    page_number INTEGER NOT NULL,
    question_num TEXT,
    question_text TEXT,
    topic TEXT,
    difficulty TEXT,
    school_level TEXT,
    marks REAL NOT NULL DEFAULT 0,
    diagram_tier TEXT NOT NULL,
    status TEXT NOT NULL,
    payload JSON NOT NULL
);

-- Persisted diagram crops
CREATE TABLE IF NOT EXISTS diagrams (
    id INTEGER PRIMARY KEY,
    question_id INTEGER NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
    page_number INTEGER NOT NULL,
    filename TEXT NOT NULL,
    path TEXT NOT NULL,
    source TEXT NOT NULL,
    confidence REAL NOT NULL,
    x INTEGER NOT NULL,
    y INTEGER NOT NULL,
    width INTEGER NOT NULL,
    height INTEGER NOT NULL,
    area INTEGER NOT NULL,
    density REAL NOT NULL DEFAULT 0,
    file_size INTEGER NOT NULL DEFAULT 0,
    verified INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_questions_document ON questions(document_id);
CREATE INDEX IF NOT EXISTS idx_diagrams_question ON diagrams(question_id);
CREATE INDEX IF NOT EXISTS idx_diagrams_source ON diagrams(source);
`
