package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mishka251/goszakupki-parces/internal/taxonomy"
)

// ClassifierConflictError rejects a taxonomy load whose codes already belong
// to another classifier. A code has exactly one classifier.
type ClassifierConflictError struct {
	Classifier string
	Codes      map[string]string // code -> classifier currently holding it
}

func (e *ClassifierConflictError) Error() string {
	codes := make([]string, 0, len(e.Codes))
	for code := range e.Codes {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	shown := codes
	if len(shown) > 5 {
		shown = shown[:5]
	}
	parts := make([]string, 0, len(shown))
	for _, code := range shown {
		parts = append(parts, fmt.Sprintf("%s (%s)", code, e.Codes[code]))
	}
	return fmt.Sprintf("%d codes for classifier %q already belong to another classifier: %s", len(codes), e.Classifier, strings.Join(parts, ", "))
}

// SaveTaxonomy records codes under a classifier and returns how many were new.
// Codes already stored under the same classifier are left untouched. If any
// code is held by a different classifier nothing is saved and a
// *ClassifierConflictError is returned.
func (s *Store) SaveTaxonomy(ctx context.Context, classifier string, codes []string) (int, error) {
	classifier = strings.TrimSpace(classifier)
	if classifier == "" {
		return 0, fmt.Errorf("classifier name is empty")
	}

	inserted := 0
	err := s.InSession(ctx, func(sess *Session) error {
		classifierID, err := sess.upsertClassifier(ctx, classifier)
		if err != nil {
			return err
		}

		stmt, err := sess.tx.PrepareContext(ctx, `
			INSERT INTO classifications (code, classifier_id) VALUES (?, ?)
			ON CONFLICT (code) DO NOTHING
			RETURNING code;`)
		if err != nil {
			return fmt.Errorf("prepare classification insert: %w", err)
		}
		defer stmt.Close()

		conflicts := map[string]string{}
		for _, code := range codes {
			code = strings.TrimSpace(code)
			if code == "" {
				continue
			}
			rows, err := stmt.QueryContext(ctx, code, classifierID)
			if err != nil {
				return fmt.Errorf("insert classification %q: %w", code, err)
			}
			added := rows.Next()
			if err := rows.Close(); err != nil {
				return fmt.Errorf("close classification insert rows: %w", err)
			}
			if added {
				inserted++
				continue
			}
			owner, err := sess.classifierOf(ctx, code)
			if err != nil {
				return err
			}
			if owner != classifier {
				conflicts[code] = owner
			}
		}
		if len(conflicts) > 0 {
			return &ClassifierConflictError{Classifier: classifier, Codes: conflicts}
		}
		return nil
	})
	if err != nil {
		var conflict *ClassifierConflictError
		if errors.As(err, &conflict) {
			s.logger.Warn("Taxonomy rejected, codes belong to another classifier.", "classifier", classifier, "conflicts", len(conflict.Codes))
		}
		return 0, err
	}
	s.logger.Info("Taxonomy saved.", "classifier", classifier, "codes", len(codes), "new", inserted)
	return inserted, nil
}

func (s *Session) upsertClassifier(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.tx.QueryRowContext(ctx,
		`INSERT INTO classifiers (name) VALUES (?) ON CONFLICT (name) DO NOTHING RETURNING classifier_id;`, name,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("insert classifier %q: %w", name, err)
	}
	if err := s.tx.QueryRowContext(ctx, `SELECT classifier_id FROM classifiers WHERE name = ?;`, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("select classifier %q: %w", name, err)
	}
	return id, nil
}

func (s *Session) classifierOf(ctx context.Context, code string) (string, error) {
	var name string
	err := s.tx.QueryRowContext(ctx, `
		SELECT cl.name
		FROM classifications c
		JOIN classifiers cl ON cl.classifier_id = c.classifier_id
		WHERE c.code = ?;`, code).Scan(&name)
	if err != nil {
		return "", fmt.Errorf("select classifier of code %q: %w", code, err)
	}
	return name, nil
}

// LoadTaxonomy reads the member codes of a classifier.
func (s *Store) LoadTaxonomy(ctx context.Context, classifier string) (*taxonomy.Taxonomy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.code
		FROM classifications c
		JOIN classifiers cl ON cl.classifier_id = c.classifier_id
		WHERE cl.name = ?
		ORDER BY c.code;`, classifier)
	if err != nil {
		return nil, fmt.Errorf("query taxonomy %q: %w", classifier, err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("scan classification code: %w", err)
		}
		codes = append(codes, code)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate taxonomy %q: %w", classifier, err)
	}
	return taxonomy.New(classifier, codes), nil
}
