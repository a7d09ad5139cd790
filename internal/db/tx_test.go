package db

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestTxFromContext_Empty(t *testing.T) {
	assert.Nil(t, TxFromContext(context.Background()))
}

func TestTxFromContext_WrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), txKey, "not a tx")
	assert.Nil(t, TxFromContext(ctx))
}

func TestIsUniqueViolation(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505", ConstraintName: "appointments_provider_slot_active_uq"}

	assert.True(t, IsUniqueViolation(dup, ""))
	assert.True(t, IsUniqueViolation(dup, "appointments_provider_slot_active_uq"))
	assert.False(t, IsUniqueViolation(dup, "other_uq"))
	assert.True(t, IsUniqueViolation(errors.Join(errors.New("insert"), dup), ""))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}, ""))
	assert.False(t, IsUniqueViolation(errors.New("boom"), ""))
}

func TestSchemaEmbedded(t *testing.T) {
	assert.True(t, strings.Contains(schemaSQL, "appointments_provider_slot_active_uq"))
	assert.True(t, strings.Contains(schemaSQL, "CREATE TABLE IF NOT EXISTS waitlist_entries"))
	assert.True(t, strings.Contains(schemaSQL, "CREATE TABLE IF NOT EXISTS consultation_notes"))
}
