package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"scoutline.dev/orchestrator/internal/model"
)

type scopeCacheStore struct {
	q querier
}

func (s *scopeCacheStore) Get(ctx context.Context, requestHash string) (*model.ScopeClassification, error) {
	row := s.q.QueryRow(ctx, `
		select request_hash, result, created_at
		from scope_classifications
		where request_hash = $1`, requestHash)

	var (
		classification model.ScopeClassification
		result         []byte
	)
	if err := row.Scan(&classification.RequestHash, &result, &classification.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(result, &classification.Result); err != nil {
		return nil, fmt.Errorf("unmarshal scope classification result: %w", err)
	}
	return &classification, nil
}

func (s *scopeCacheStore) Put(ctx context.Context, classification model.ScopeClassification) error {
	result, err := json.Marshal(classification.Result)
	if err != nil {
		return fmt.Errorf("marshal scope classification result: %w", err)
	}

	_, err = s.q.Exec(ctx, `
		insert into scope_classifications (request_hash, result, created_at)
		values ($1, $2, $3)
		on conflict (request_hash) do update set result = excluded.result, created_at = excluded.created_at`,
		classification.RequestHash, result, classification.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("put scope classification: %w", err)
	}
	return nil
}
