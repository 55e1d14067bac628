package postgres

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestUniqueViolation(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505", ConstraintName: "backtest_summaries_pkey"}
	assert.True(t, uniqueViolation(dup))
	assert.True(t, uniqueViolation(errors.Join(errors.New("exec failed"), dup)))

	assert.False(t, uniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, uniqueViolation(errors.New("connection refused")))
	assert.False(t, uniqueViolation(nil))
}
