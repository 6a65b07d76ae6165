package migrations

import (
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedSchemaHasPairedMigrations(t *testing.T) {
	entries, err := schemaFS.ReadDir(".")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		require.True(t, strings.HasSuffix(name, ".sql"), "unexpected embedded file %s", name)
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Fatalf("migration %s is neither .up.sql nor .down.sql", name)
		}
	}
	require.Equal(t, ups, downs, "every up migration needs a matching down")
}

func TestSourceDriverReadsBaseline(t *testing.T) {
	src, err := iofs.New(schemaFS, ".")
	require.NoError(t, err)
	defer src.Close()

	first, err := src.First()
	require.NoError(t, err)
	require.Equal(t, uint(1), first)

	rd, ident, err := src.ReadUp(first)
	require.NoError(t, err)
	defer rd.Close()
	require.Contains(t, ident, "init")
}
