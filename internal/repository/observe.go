package repository

import (
	"context"
	"log/slog"

	"tcron/internal/core"
	"tcron/internal/store"
)

// observe emits load's result once, then again after every committed change to tables,
// until ctx ends. The channel holds one snapshot; a slow reader only sees the latest.
func observe[T any](ctx context.Context, st *store.Store, tables []string, load func(context.Context) (T, error)) <-chan core.Result[T] {
	out := make(chan core.Result[T], 1)
	// Subscribe before the first load so a commit racing it is not lost.
	signals, cancel := st.Watch(tables...)
	go func() {
		defer close(out)
		defer cancel()
		emit := func() {
			v, err := load(ctx)
			if ctx.Err() != nil {
				return
			}
			r := core.Ok(v)
			if err != nil {
				r = core.Fail[T](err)
			}
			select {
			case <-out:
			default:
			}
			select {
			case out <- r:
			case <-ctx.Done():
			}
		}
		emit()
		for {
			select {
			case <-ctx.Done():
				return
			case <-signals:
				emit()
			}
		}
	}()
	return out
}

// decodeAll applies policy to rows that fail to decode. decode is expected to already
// substitute defaults when policy is PolicyDefault.
func decodeAll[R, T any](rows []R, decode func(R) (T, error), policy core.MalformedPolicy, logger *slog.Logger) ([]T, error) {
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		v, err := decode(row)
		if err != nil {
			if policy == core.PolicySkip {
				logger.Warn("skipping malformed row", "err", err)
				continue
			}
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
