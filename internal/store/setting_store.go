package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"scoutline.dev/orchestrator/internal/model"
)

type settingStore struct {
	q querier
}

func (s *settingStore) Get(ctx context.Context, key string) (*model.Setting, error) {
	row := s.q.QueryRow(ctx, `select key, value, updated_at from global_settings where key = $1`, key)

	var setting model.Setting
	if err := row.Scan(&setting.Key, &setting.Value, &setting.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &setting, nil
}

func (s *settingStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.q.Exec(ctx, `
		insert into global_settings (key, value, updated_at)
		values ($1, $2, now())
		on conflict (key) do update set value = excluded.value, updated_at = now()`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}

func (s *settingStore) List(ctx context.Context) ([]model.Setting, error) {
	rows, err := s.q.Query(ctx, `select key, value, updated_at from global_settings order by key`)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()

	var out []model.Setting
	for rows.Next() {
		var setting model.Setting
		if err := rows.Scan(&setting.Key, &setting.Value, &setting.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, setting)
	}
	return out, rows.Err()
}

func (s *settingStore) Delete(ctx context.Context, key string) error {
	tag, err := s.q.Exec(ctx, `delete from global_settings where key = $1`, key)
	if err != nil {
		return fmt.Errorf("delete setting %q: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
