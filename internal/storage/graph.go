package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const objectiveColumns = `id, entry_id, text, normalized_text, context, category, timeframe, owner,
	status, priority, confidence, metrics, tags, source_label, source_excerpt, created_at, updated_at`

const relationshipColumns = `id, source_id, target_id, type, rationale, weight, created_at, updated_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// execQuerier is satisfied by both *sql.DB and *sql.Tx.
type execQuerier interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
}

// IngestGraph persists one ingestion event as a single transaction: the
// provenance entry, every surviving objective, and every resolved
// relationship. Relationship endpoints must already be concrete objective
// identifiers. Either everything commits or nothing does.
//
// Returned relationships reflect the rows as stored, including rows that
// pre-existed and were updated by the upsert.
func (s *Store) IngestGraph(entry KnowledgeEntry, objectives []Objective, relationships []Relationship) ([]Relationship, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning ingest transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO knowledge_entries (id, title, raw_text, created_at)
		VALUES (?, ?, ?, ?)`,
		entry.ID, entry.Title, entry.RawText, entry.CreatedAt.UTC().Format(time.RFC3339),
	); err != nil {
		return nil, fmt.Errorf("inserting knowledge entry: %w", mapConstraintErr(err))
	}

	for _, o := range objectives {
		if _, err := tx.Exec(`
			INSERT INTO objectives (`+objectiveColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			o.ID, o.EntryID, o.Text, o.NormalizedText, o.Context, o.Category, o.Timeframe, o.Owner,
			o.Status, o.Priority, o.Confidence, o.Metrics, o.Tags, o.SourceLabel, o.SourceExcerpt,
			o.CreatedAt.UTC().Format(time.RFC3339), o.UpdatedAt.UTC().Format(time.RFC3339),
		); err != nil {
			return nil, fmt.Errorf("inserting objective %s: %w", o.ID, mapConstraintErr(err))
		}
	}

	persisted := make([]Relationship, 0, len(relationships))
	for _, r := range relationships {
		stored, err := upsertRelationship(tx, r)
		if err != nil {
			return nil, fmt.Errorf("upserting relationship %s -> %s: %w", r.SourceID, r.TargetID, err)
		}
		persisted = append(persisted, stored)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing ingest transaction: %w", err)
	}
	return persisted, nil
}

// upsertRelationship inserts a relationship or, when a row already exists
// for the (source, target, type) key, updates its rationale and weight in
// place. The stored row is returned either way.
func upsertRelationship(q execQuerier, r Relationship) (Relationship, error) {
	if _, err := q.Exec(`
		INSERT INTO relationships (`+relationshipColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id, target_id, type) DO UPDATE SET
			rationale = excluded.rationale,
			weight = excluded.weight,
			updated_at = excluded.updated_at`,
		r.ID, r.SourceID, r.TargetID, r.Type, r.Rationale, r.Weight,
		r.CreatedAt.UTC().Format(time.RFC3339), r.UpdatedAt.UTC().Format(time.RFC3339),
	); err != nil {
		return Relationship{}, mapConstraintErr(err)
	}

	row := q.QueryRow(`
		SELECT `+relationshipColumns+` FROM relationships
		WHERE source_id = ? AND target_id = ? AND type = ?`,
		r.SourceID, r.TargetID, r.Type,
	)
	return scanRelationship(row)
}

// UpsertRelationship is the standalone relationship-create path. The same
// (source, target, type) key converges on one row; rationale and weight of
// the latest call win.
func (s *Store) UpsertRelationship(r Relationship) (Relationship, error) {
	return upsertRelationship(s.db, r)
}

// ExistingNormalizedTexts returns the normalized text of every stored
// objective matching one of the given normalized statements. Matching on
// the normalized column catches whitespace variants of stored text, not
// just case differences. One batch query regardless of batch size.
func (s *Store) ExistingNormalizedTexts(normalizedStatements []string) ([]string, error) {
	if len(normalizedStatements) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat(",?", len(normalizedStatements)-1)
	args := make([]any, len(normalizedStatements))
	for i, t := range normalizedStatements {
		args[i] = t
	}

	rows, err := s.db.Query(`
		SELECT normalized_text FROM objectives WHERE normalized_text IN (?`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var texts []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		texts = append(texts, t)
	}
	return texts, rows.Err()
}

// --- Objective reads ---

func (s *Store) GetObjective(id string) (Objective, error) {
	row := s.db.QueryRow(`SELECT `+objectiveColumns+` FROM objectives WHERE id = ?`, id)
	o, err := scanObjective(row)
	if err == sql.ErrNoRows {
		return Objective{}, ErrNotFound
	}
	return o, err
}

// ObjectivesByIDs returns the objectives matching the given identifiers,
// most recently created first. Unknown identifiers are skipped.
func (s *Store) ObjectivesByIDs(ids []string) ([]Objective, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat(",?", len(ids)-1)
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.Query(`
		SELECT `+objectiveColumns+` FROM objectives
		WHERE id IN (?`+placeholders+`)
		ORDER BY created_at DESC, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectObjectives(rows)
}

// ListObjectives returns a page of objectives, most recently created
// first. A non-empty query matches case-insensitively against the text or
// exactly against a lower-cased tag.
func (s *Store) ListObjectives(limit, offset int, query string) ([]Objective, error) {
	var rows *sql.Rows
	var err error
	if query == "" {
		rows, err = s.db.Query(`
			SELECT `+objectiveColumns+` FROM objectives
			ORDER BY created_at DESC, id LIMIT ? OFFSET ?`, limit, offset)
	} else {
		q := strings.ToLower(strings.TrimSpace(query))
		rows, err = s.db.Query(`
			SELECT `+objectiveColumns+` FROM objectives
			WHERE instr(lower(text), ?) > 0
			   OR EXISTS (SELECT 1 FROM json_each(objectives.tags) WHERE json_each.value = ?)
			ORDER BY created_at DESC, id LIMIT ? OFFSET ?`, q, q, limit, offset)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectObjectives(rows)
}

// AllObjectives returns every stored objective, most recently created first.
func (s *Store) AllObjectives() ([]Objective, error) {
	rows, err := s.db.Query(`SELECT ` + objectiveColumns + ` FROM objectives ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectObjectives(rows)
}

// ObjectiveExists reports whether an objective with the given id is stored.
func (s *Store) ObjectiveExists(id string) (bool, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM objectives WHERE id = ?`, id).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpdateObjective applies the non-nil fields of upd to an objective row.
func (s *Store) UpdateObjective(id string, upd ObjectiveUpdate) (Objective, error) {
	var sets []string
	var args []any
	set := func(column string, v *string) {
		if v != nil {
			sets = append(sets, column+" = ?")
			args = append(args, *v)
		}
	}
	set("status", upd.Status)
	set("priority", upd.Priority)
	set("context", upd.Context)
	set("category", upd.Category)
	set("timeframe", upd.Timeframe)
	set("owner", upd.Owner)

	if len(sets) > 0 {
		sets = append(sets, "updated_at = ?")
		args = append(args, time.Now().UTC().Format(time.RFC3339))
		args = append(args, id)

		res, err := s.db.Exec(`UPDATE objectives SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
		if err != nil {
			return Objective{}, mapConstraintErr(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return Objective{}, err
		}
		if n == 0 {
			return Objective{}, ErrNotFound
		}
	}

	return s.GetObjective(id)
}

// --- Relationship reads and edits ---

func (s *Store) GetRelationship(id string) (Relationship, error) {
	row := s.db.QueryRow(`SELECT `+relationshipColumns+` FROM relationships WHERE id = ?`, id)
	r, err := scanRelationship(row)
	if err == sql.ErrNoRows {
		return Relationship{}, ErrNotFound
	}
	return r, err
}

// AllRelationships returns every stored relationship ordered by creation time.
func (s *Store) AllRelationships() ([]Relationship, error) {
	rows, err := s.db.Query(`SELECT ` + relationshipColumns + ` FROM relationships ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Relationship
	for rows.Next() {
		r, err := scanRelationship(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// OutgoingRelationships returns, for the given source objectives, every
// outgoing relationship joined with its target's summary fields.
func (s *Store) OutgoingRelationships(sourceIDs []string) ([]RelationshipWithTarget, error) {
	if len(sourceIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat(",?", len(sourceIDs)-1)
	args := make([]any, len(sourceIDs))
	for i, id := range sourceIDs {
		args[i] = id
	}

	rows, err := s.db.Query(`
		SELECT r.id, r.source_id, r.target_id, r.type, r.rationale, r.weight, r.created_at, r.updated_at,
		       t.text, t.status, t.priority
		FROM relationships r
		JOIN objectives t ON t.id = r.target_id
		WHERE r.source_id IN (?`+placeholders+`)
		ORDER BY r.created_at, r.id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []RelationshipWithTarget
	for rows.Next() {
		var r RelationshipWithTarget
		var createdAt, updatedAt string
		if err := rows.Scan(&r.ID, &r.SourceID, &r.TargetID, &r.Type, &r.Rationale, &r.Weight,
			&createdAt, &updatedAt, &r.TargetText, &r.TargetStatus, &r.TargetPriority); err != nil {
			return nil, err
		}
		if r.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		if r.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// UpdateRelationship applies the non-nil fields of upd to a relationship
// row. Retargeting onto an existing (source, target, type) key surfaces as
// ErrConflict rather than silently merging rows.
func (s *Store) UpdateRelationship(id string, upd RelationshipUpdate) (Relationship, error) {
	var sets []string
	var args []any
	if upd.TargetID != nil {
		sets = append(sets, "target_id = ?")
		args = append(args, *upd.TargetID)
	}
	if upd.Type != nil {
		sets = append(sets, "type = ?")
		args = append(args, *upd.Type)
	}
	if upd.Rationale != nil {
		sets = append(sets, "rationale = ?")
		args = append(args, *upd.Rationale)
	}
	if upd.Weight != nil {
		sets = append(sets, "weight = ?")
		args = append(args, *upd.Weight)
	}

	if len(sets) > 0 {
		sets = append(sets, "updated_at = ?")
		args = append(args, time.Now().UTC().Format(time.RFC3339))
		args = append(args, id)

		res, err := s.db.Exec(`UPDATE relationships SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
		if err != nil {
			return Relationship{}, mapConstraintErr(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return Relationship{}, err
		}
		if n == 0 {
			return Relationship{}, ErrNotFound
		}
	}

	return s.GetRelationship(id)
}

// DeleteRelationship removes a relationship and returns the deleted row.
func (s *Store) DeleteRelationship(id string) (Relationship, error) {
	r, err := s.GetRelationship(id)
	if err != nil {
		return Relationship{}, err
	}
	if _, err := s.db.Exec(`DELETE FROM relationships WHERE id = ?`, id); err != nil {
		return Relationship{}, err
	}
	return r, nil
}

// --- Knowledge entries ---

func (s *Store) GetEntry(id string) (KnowledgeEntry, error) {
	var e KnowledgeEntry
	var createdAt string
	err := s.db.QueryRow(`
		SELECT id, title, raw_text, created_at FROM knowledge_entries WHERE id = ?`, id,
	).Scan(&e.ID, &e.Title, &e.RawText, &createdAt)
	if err == sql.ErrNoRows {
		return KnowledgeEntry{}, ErrNotFound
	}
	if err != nil {
		return KnowledgeEntry{}, err
	}
	if e.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return KnowledgeEntry{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return e, nil
}

// ListEntries returns a page of ingestion events, most recent first.
func (s *Store) ListEntries(limit, offset int) ([]KnowledgeEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, title, raw_text, created_at FROM knowledge_entries
		ORDER BY created_at DESC, id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []KnowledgeEntry
	for rows.Next() {
		var e KnowledgeEntry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Title, &e.RawText, &createdAt); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

// EntryObjectiveIDs returns the identifiers of the objectives produced by
// one ingestion event.
func (s *Store) EntryObjectiveIDs(entryID string) ([]string, error) {
	rows, err := s.db.Query(`SELECT id FROM objectives WHERE entry_id = ? ORDER BY created_at, id`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- scanning helpers ---

func scanObjective(row rowScanner) (Objective, error) {
	var o Objective
	var createdAt, updatedAt string
	err := row.Scan(&o.ID, &o.EntryID, &o.Text, &o.NormalizedText, &o.Context, &o.Category,
		&o.Timeframe, &o.Owner, &o.Status, &o.Priority, &o.Confidence, &o.Metrics, &o.Tags,
		&o.SourceLabel, &o.SourceExcerpt, &createdAt, &updatedAt)
	if err != nil {
		return Objective{}, err
	}
	if o.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Objective{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if o.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return Objective{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return o, nil
}

func collectObjectives(rows *sql.Rows) ([]Objective, error) {
	var results []Objective
	for rows.Next() {
		o, err := scanObjective(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, o)
	}
	return results, rows.Err()
}

func scanRelationship(row rowScanner) (Relationship, error) {
	var r Relationship
	var createdAt, updatedAt string
	err := row.Scan(&r.ID, &r.SourceID, &r.TargetID, &r.Type, &r.Rationale, &r.Weight, &createdAt, &updatedAt)
	if err != nil {
		return Relationship{}, err
	}
	if r.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Relationship{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if r.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return Relationship{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return r, nil
}
