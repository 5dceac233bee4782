package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type recordingExec struct {
	calls []pgx.NamedArgs
}

func (r *recordingExec) Exec(_ context.Context, _ string, arguments ...any) (pgconn.CommandTag, error) {
	if len(arguments) == 1 {
		if args, ok := arguments[0].(pgx.NamedArgs); ok {
			r.calls = append(r.calls, args)
		}
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}
