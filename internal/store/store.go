// Package store keeps processed documents, their questions and diagram crops
// in SQLite so runs can be reviewed and compared later.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/ironsheep/exam-diagrams/internal/pipeline"
)

// Document is a row in the documents table.
type Document struct {
	ID             int64  `json:"id"`
	Path           string `json:"path"`
	Filename       string `json:"filename"`
	TotalPages     int    `json:"total_pages"`
	APICalls       int    `json:"api_calls"`
	TotalQuestions int    `json:"total_questions"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

// Diagram is a row in the diagrams table joined with its question.
type Diagram struct {
	ID          int64   `json:"id"`
	QuestionID  int64   `json:"question_id"`
	QuestionNum string  `json:"question_num"`
	PageNumber  int     `json:"page_number"`
	Filename    string  `json:"filename"`
	Path        string  `json:"path"`
	Source      string  `json:"source"`
	Confidence  float64 `json:"confidence"`
	X           int     `json:"x"`
	Y           int     `json:"y"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Area        int     `json:"area"`
	Density     float64 `json:"density"`
	FileSize    int64   `json:"file_size"`
	Verified    bool    `json:"verified"`
}

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "creating db directory")
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "pinging database")
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "creating schema")
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveDocument records a processed document. Saving the same path again
// replaces its questions and diagrams. It returns the document ID.
func (s *Store) SaveDocument(ctx context.Context, path string, doc *pipeline.Document) (int64, error) {
	var docID int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO documents (path, filename, total_pages, api_calls, total_questions)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(path) DO UPDATE SET
				filename = excluded.filename,
				total_pages = excluded.total_pages,
				api_calls = excluded.api_calls,
				total_questions = excluded.total_questions,
				updated_at = CURRENT_TIMESTAMP
		`, path, doc.Info.Filename, doc.Info.TotalPages, doc.Info.APICallsUsed, doc.Info.TotalQuestions)
		if err != nil {
			return errors.Wrap(err, "upserting document")
		}
		// LastInsertId does not reflect the existing row after an update.
		if err := tx.QueryRowContext(ctx, "SELECT id FROM documents WHERE path = ?", path).Scan(&docID); err != nil {
			return errors.Wrap(err, "reading document id")
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM questions WHERE document_id = ?", docID); err != nil {
			return errors.Wrap(err, "clearing questions")
		}

		for _, q := range doc.Questions {
			payload, err := json.Marshal(q)
			if err != nil {
				return errors.Wrap(err, "encoding question")
			}
			res, err := tx.ExecContext(ctx, `
				INSERT INTO questions (document_id, page_number, question_num, question_text, topic,
					difficulty, school_level, marks, diagram_tier, status, payload)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, docID, q.PageNumber, string(q.QuestionNum), q.QuestionText, q.Topic,
				q.Difficulty, q.SchoolLevel, q.Marks, q.DiagramTier.String(), q.Status, string(payload))
			if err != nil {
				return errors.Wrapf(err, "inserting question %s", q.QuestionNum)
			}
			qID, err := res.LastInsertId()
			if err != nil {
				return err
			}
			for _, d := range q.Diagrams {
				_, err := tx.ExecContext(ctx, `
					INSERT INTO diagrams (question_id, page_number, filename, path, source, confidence,
						x, y, width, height, area, density, file_size, verified)
					VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				`, qID, d.Page, d.Filename, d.Path, string(d.Source), d.Confidence,
					d.BBox.X, d.BBox.Y, d.BBox.Width, d.BBox.Height, d.Area, d.Density, d.FileSize, d.Verified)
				if err != nil {
					return errors.Wrapf(err, "inserting diagram %s", d.Filename)
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return docID, nil
}

// GetDocumentByPath retrieves a document by its file path.
func (s *Store) GetDocumentByPath(ctx context.Context, path string) (*Document, error) {
	doc := &Document{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, path, filename, total_pages, api_calls, total_questions, created_at, updated_at
		FROM documents WHERE path = ?
	`, path).Scan(&doc.ID, &doc.Path, &doc.Filename, &doc.TotalPages, &doc.APICalls,
		&doc.TotalQuestions, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// ListDocuments returns all documents, most recently updated first.
func (s *Store) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, path, filename, total_pages, api_calls, total_questions, created_at, updated_at
		FROM documents ORDER BY updated_at DESC, id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Path, &d.Filename, &d.TotalPages, &d.APICalls,
			&d.TotalQuestions, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// Questions returns the stored questions of a document in page order.
func (s *Store) Questions(ctx context.Context, docID int64) ([]pipeline.EnrichedQuestion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM questions WHERE document_id = ? ORDER BY page_number, id
	`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []pipeline.EnrichedQuestion
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var q pipeline.EnrichedQuestion
		if err := json.Unmarshal([]byte(payload), &q); err != nil {
			return nil, errors.Wrap(err, "decoding question")
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// Diagrams returns the diagram crops of a document in page order.
func (s *Store) Diagrams(ctx context.Context, docID int64) ([]Diagram, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.question_id, q.question_num, d.page_number, d.filename, d.path, d.source,
			d.confidence, d.x, d.y, d.width, d.height, d.area, d.density, d.file_size, d.verified
		FROM diagrams d JOIN questions q ON q.id = d.question_id
		WHERE q.document_id = ?
		ORDER BY d.page_number, d.id
	`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Diagram
	for rows.Next() {
		var d Diagram
		var num sql.NullString
		if err := rows.Scan(&d.ID, &d.QuestionID, &num, &d.PageNumber, &d.Filename, &d.Path,
			&d.Source, &d.Confidence, &d.X, &d.Y, &d.Width, &d.Height, &d.Area, &d.Density,
			&d.FileSize, &d.Verified); err != nil {
			return nil, err
		}
		d.QuestionNum = num.String
		out = append(out, d)
	}
	return out, rows.Err()
}

// SourceCounts returns how many crops of a document each source produced.
func (s *Store) SourceCounts(ctx context.Context, docID int64) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.source, COUNT(*)
		FROM diagrams d JOIN questions q ON q.id = d.question_id
		WHERE q.document_id = ?
		GROUP BY d.source
	`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var source string
		var n int
		if err := rows.Scan(&source, &n); err != nil {
			return nil, err
		}
		out[source] = n
	}
	return out, rows.Err()
}

// DeleteDocument removes a document with its questions and diagrams.
func (s *Store) DeleteDocument(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	return err
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
