package store

import (
	"context"
	"fmt"
	"time"

	"github.com/pavelanni/microlearn/internal/model"
)

// SaveResult appends a study result. Records are never updated afterwards.
// A zero CreatedAt is stamped with the current time.
func (s *Store) SaveResult(ctx context.Context, r model.ResultRecord) (int64, error) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	var id int64
	err := s.queryRow(ctx,
		`INSERT INTO results (name, username, topic, pre_score, post_score, max_score, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		r.LearnerName, r.Username, r.Topic, r.PreScore, r.PostScore, r.MaxScore, r.CreatedAt.UTC(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert result: %w", err)
	}
	return id, nil
}

// ListResultsFor returns the records owned by username, newest first.
func (s *Store) ListResultsFor(ctx context.Context, username string) ([]model.ResultRecord, error) {
	rows, err := s.query(ctx,
		`SELECT id, name, username, topic, pre_score, post_score, max_score, created_at
		 FROM results WHERE username = ? ORDER BY created_at DESC, id DESC`, username,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ResultRecord
	for rows.Next() {
		var r model.ResultRecord
		if err := rows.Scan(&r.ID, &r.LearnerName, &r.Username, &r.Topic, &r.PreScore, &r.PostScore, &r.MaxScore, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ExportResultsFor builds the JSON export of a user's dashboard.
func (s *Store) ExportResultsFor(ctx context.Context, username string) (model.ResultsExport, error) {
	records, err := s.ListResultsFor(ctx, username)
	if err != nil {
		return model.ResultsExport{}, fmt.Errorf("list results: %w", err)
	}
	if records == nil {
		records = []model.ResultRecord{}
	}
	return model.ResultsExport{
		Username:    username,
		GeneratedAt: time.Now().UTC(),
		Count:       len(records),
		Results:     records,
	}, nil
}
