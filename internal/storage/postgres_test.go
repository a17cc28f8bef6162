package storage

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/yourname/focustracker/internal"
)

func TestMapSessionScanErr(t *testing.T) {
	assert.ErrorIs(t, mapSessionScanErr(pgx.ErrNoRows), internal.ErrSessionNotFound)

	// Anything other than an empty result set is a store failure, not a
	// missing session.
	connErr := errors.New("unexpected EOF")
	err := mapSessionScanErr(connErr)
	assert.ErrorIs(t, err, connErr)
	assert.NotErrorIs(t, err, internal.ErrSessionNotFound)
}
