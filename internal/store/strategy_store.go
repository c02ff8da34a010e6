package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"scoutline.dev/orchestrator/internal/model"
)

type strategyStore struct {
	q querier
}

func (s *strategyStore) GetBySlug(ctx context.Context, slug string) (*model.Strategy, error) {
	row := s.q.QueryRow(ctx, `
		select slug, version, category, time_window, depth, priority,
		       queries, tool_chain, limits, fan_out, required_variables,
		       render, finalize, llm, description, is_active
		from strategies
		where slug = $1 and is_active`, slug)

	strategy, err := scanStrategy(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return strategy, nil
}

func (s *strategyStore) ListActive(ctx context.Context) ([]model.Strategy, error) {
	rows, err := s.q.Query(ctx, `
		select slug, version, category, time_window, depth, priority,
		       queries, tool_chain, limits, fan_out, required_variables,
		       render, finalize, llm, description, is_active
		from strategies
		where is_active
		order by category, priority desc, slug`)
	if err != nil {
		return nil, fmt.Errorf("list active strategies: %w", err)
	}
	defer rows.Close()

	var out []model.Strategy
	for rows.Next() {
		strategy, err := scanStrategy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *strategy)
	}
	return out, rows.Err()
}

func (s *strategyStore) Upsert(ctx context.Context, strategy *model.Strategy) error {
	queries, err := json.Marshal(strategy.Queries)
	if err != nil {
		return fmt.Errorf("marshal queries: %w", err)
	}
	toolChain, err := json.Marshal(strategy.ToolChain)
	if err != nil {
		return fmt.Errorf("marshal tool_chain: %w", err)
	}
	limits, err := json.Marshal(strategy.Limits)
	if err != nil {
		return fmt.Errorf("marshal limits: %w", err)
	}
	fanOut, err := json.Marshal(strategy.FanOut)
	if err != nil {
		return fmt.Errorf("marshal fan_out: %w", err)
	}
	requiredVars, err := json.Marshal(strategy.RequiredVariables)
	if err != nil {
		return fmt.Errorf("marshal required_variables: %w", err)
	}
	render, err := json.Marshal(strategy.Render)
	if err != nil {
		return fmt.Errorf("marshal render: %w", err)
	}
	finalize, err := json.Marshal(strategy.Finalize)
	if err != nil {
		return fmt.Errorf("marshal finalize: %w", err)
	}
	llmOverrides, err := json.Marshal(strategy.LLM)
	if err != nil {
		return fmt.Errorf("marshal llm: %w", err)
	}

	_, err = s.q.Exec(ctx, `
		insert into strategies (
			slug, version, category, time_window, depth, priority,
			queries, tool_chain, limits, fan_out, required_variables,
			render, finalize, llm, description, is_active
		) values (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, true
		)
		on conflict (slug) do update set
			version             = excluded.version,
			category             = excluded.category,
			time_window          = excluded.time_window,
			depth                = excluded.depth,
			priority             = excluded.priority,
			queries              = excluded.queries,
			tool_chain           = excluded.tool_chain,
			limits               = excluded.limits,
			fan_out              = excluded.fan_out,
			required_variables   = excluded.required_variables,
			render               = excluded.render,
			finalize             = excluded.finalize,
			llm                  = excluded.llm,
			description          = excluded.description,
			is_active            = true`,
		strategy.Meta.Slug, strategy.Meta.Version, strategy.Meta.Category,
		strategy.Meta.TimeWindow, strategy.Meta.Depth, strategy.Meta.Priority,
		queries, toolChain, limits, fanOut, requiredVars, render, finalize,
		llmOverrides, strategy.Description,
	)
	if err != nil {
		return fmt.Errorf("upsert strategy %q: %w", strategy.Meta.Slug, err)
	}

	strategy.IsActive = true
	return nil
}

func (s *strategyStore) Deactivate(ctx context.Context, slug string) error {
	tag, err := s.q.Exec(ctx, `update strategies set is_active = false where slug = $1`, slug)
	if err != nil {
		return fmt.Errorf("deactivate strategy %q: %w", slug, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *strategyStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.q.QueryRow(ctx, `select count(*) from strategies`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count strategies: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStrategy(row rowScanner) (*model.Strategy, error) {
	var (
		strategy                                                       model.Strategy
		queries, toolChain, limits, fanOut, requiredVars, render, llm   []byte
		finalize                                                       []byte
	)

	err := row.Scan(
		&strategy.Meta.Slug, &strategy.Meta.Version, &strategy.Meta.Category,
		&strategy.Meta.TimeWindow, &strategy.Meta.Depth, &strategy.Meta.Priority,
		&queries, &toolChain, &limits, &fanOut, &requiredVars,
		&render, &finalize, &llm, &strategy.Description, &strategy.IsActive,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalIfPresent(queries, &strategy.Queries); err != nil {
		return nil, fmt.Errorf("unmarshal queries: %w", err)
	}
	if err := unmarshalIfPresent(toolChain, &strategy.ToolChain); err != nil {
		return nil, fmt.Errorf("unmarshal tool_chain: %w", err)
	}
	if err := unmarshalIfPresent(limits, &strategy.Limits); err != nil {
		return nil, fmt.Errorf("unmarshal limits: %w", err)
	}
	if err := unmarshalIfPresent(fanOut, &strategy.FanOut); err != nil {
		return nil, fmt.Errorf("unmarshal fan_out: %w", err)
	}
	if err := unmarshalIfPresent(requiredVars, &strategy.RequiredVariables); err != nil {
		return nil, fmt.Errorf("unmarshal required_variables: %w", err)
	}
	if err := unmarshalIfPresent(render, &strategy.Render); err != nil {
		return nil, fmt.Errorf("unmarshal render: %w", err)
	}
	if len(finalize) > 0 {
		strategy.Finalize = &model.FinalizeSpec{}
		if err := json.Unmarshal(finalize, strategy.Finalize); err != nil {
			return nil, fmt.Errorf("unmarshal finalize: %w", err)
		}
	}
	if err := unmarshalIfPresent(llm, &strategy.LLM); err != nil {
		return nil, fmt.Errorf("unmarshal llm: %w", err)
	}

	return &strategy, nil
}

func unmarshalIfPresent(data []byte, target any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, target)
}
