package tx

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromEmptyContext(t *testing.T) {
	_, ok := From(context.Background())
	assert.False(t, ok)
}

func TestWithNilTxLeavesContextUntouched(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, ctx, WithTx(ctx, nil))
}

func TestOrFallsBackToDB(t *testing.T) {
	db := &sql.DB{}
	assert.Same(t, db, Or(context.Background(), db))

	sqlTx := &sql.Tx{}
	ctx := WithTx(context.Background(), sqlTx)
	assert.Same(t, sqlTx, Or(ctx, db))
}
