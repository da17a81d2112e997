// Package sqlxrepos implements the repositories on PostgreSQL with sqlx.
package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/calisma/core"
)

const fkViolation = "23503"

type repository struct {
	db core.DB
}

func (repo repository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return repo.db
}

// inTx runs fn in a transaction, unless the caller already passed an executor.
func (repo repository) inTx(ctx context.Context, svcExec []core.DBExecutor, fn func(exec core.DBExecutor) error) error {
	if len(svcExec) > 0 {
		return fn(svcExec[0])
	}
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "starting transaction")
	}
	if err = fn(tx); err != nil {
		// a transaction that cannot be rolled back leaves the connection pool in an unknown state
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			return core.NewShutdownError(fmt.Sprintf("rolling back transaction: %v (after: %v)", rbErr, err))
		}
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

// trapNoRowsErr maps psql "no rows" err to notFound
func trapNoRowsErr(err error, notFound error, msg string) error {
	if err == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

func isFKViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == fkViolation
}

func nullJSON(raw json.RawMessage) types.NullJSONText {
	if raw == nil {
		return types.NullJSONText{}
	}
	return types.NullJSONText{JSONText: types.JSONText(raw), Valid: true}
}

// orderBy renders the ordering, rejecting columns outside allowed.
func orderBy(ordering []core.DBOrdering, allowed ...string) (string, error) {
	if len(ordering) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		ok := false
		for _, col := range allowed {
			if ord.Field == col {
				ok = true
				break
			}
		}
		if !ok {
			return "", fmt.Errorf("unknown ordering field %q", ord.Field)
		}
		parts = append(parts, ord.String())
	}
	return " ORDER BY " + strings.Join(parts, ", "), nil
}

// where collects conditions and their positional args.
type where struct {
	conds []string
	args  []interface{}
}

func (w *where) add(cond string, arg interface{}) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, fmt.Sprintf(cond, len(w.args)))
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}
