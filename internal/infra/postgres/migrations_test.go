package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPgxURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@db:5432/jobs?sslmode=disable", pgxURL("postgresql://u:p@db:5432/jobs?sslmode=disable"))
	assert.Equal(t, "pgx5://u@db/jobs", pgxURL("postgres://u@db/jobs"))
	assert.Equal(t, "pgx5://already", pgxURL("pgx5://already"))
}
