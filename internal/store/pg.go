package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgStore struct {
	pool        *pgxpool.Pool
	tableUsages string
}

func OpenPostgres(ctx context.Context, url, tablePrefix string) (*PgStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, err
	}
	s := &PgStore{
		pool:        pool,
		tableUsages: tablePrefix + "usages",
	}
	if err := s.init(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PgStore) init(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`create table if not exists %s (
            id bigserial primary key,
            context_id text not null,
            user_id bigint not null,
            at_time timestamptz not null,
            response_id text not null default '',
            reference_id text not null
        )`, s.tableUsages),
		fmt.Sprintf(`create index if not exists %s_user_ctx_time_idx
            on %s (user_id, context_id, at_time)`, s.tableUsages, s.tableUsages),
	}
	for _, q := range stmts {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *PgStore) Close() error { s.pool.Close(); return nil }

func (s *PgStore) AddUsage(ctx context.Context, usage Usage) error {
	_, err := s.pool.Exec(ctx,
		fmt.Sprintf(`insert into %s (context_id, user_id, at_time, response_id, reference_id)
         values ($1,$2,$3,$4,$5)`, s.tableUsages),
		usage.ContextID, usage.UserID, usage.AtTime, usage.ResponseID, usage.ReferenceID,
	)
	return err
}

func (s *PgStore) ListUsages(ctx context.Context, userID int64, contextID string, from, to time.Time) ([]Usage, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`select context_id, user_id, at_time, response_id, reference_id from %s
         where user_id=$1 and context_id=$2 and at_time >= $3 and at_time < $4
         order by at_time`, s.tableUsages),
		userID, contextID, from, to,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var usages []Usage
	for rows.Next() {
		var u Usage
		if err := rows.Scan(&u.ContextID, &u.UserID, &u.AtTime, &u.ResponseID, &u.ReferenceID); err != nil {
			return nil, err
		}
		usages = append(usages, u)
	}
	return usages, rows.Err()
}

func (s *PgStore) GetUsageByContext(ctx context.Context, userID int64, contextID string) (Usage, error) {
	var u Usage
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`select context_id, user_id, at_time, response_id, reference_id from %s
         where user_id=$1 and context_id=$2
         order by at_time desc limit 1`, s.tableUsages),
		userID, contextID,
	).Scan(&u.ContextID, &u.UserID, &u.AtTime, &u.ResponseID, &u.ReferenceID)
	if err == pgx.ErrNoRows {
		return Usage{}, ErrNotFound
	}
	if err != nil {
		return Usage{}, err
	}
	return u, nil
}

func (s *PgStore) DeleteUsagesBefore(ctx context.Context, contextID string, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`delete from %s where context_id=$1 and at_time < $2`, s.tableUsages),
		contextID, cutoff,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
