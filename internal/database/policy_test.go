package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	testdata := map[string]StatementKind{
		"SELECT * FROM users":                               StatementRead,
		"  select 1":                                        StatementRead,
		"(SELECT 1) UNION (SELECT 2)":                       StatementRead,
		"-- comment\nSELECT 1":                              StatementRead,
		"/* hint */ SHOW search_path":                       StatementRead,
		"WITH t AS (SELECT 1) SELECT * FROM t":              StatementRead,
		"WITH d AS (DELETE FROM t RETURNING *) SELECT 1":    StatementDestructive,
		"EXPLAIN SELECT 1":                                  StatementRead,
		"EXPLAIN ANALYZE UPDATE users SET name = 'x'":       StatementDestructive,
		"VALUES (1), (2)":                                   StatementRead,
		"TABLE users":                                       StatementRead,
		"INSERT INTO users VALUES (1)":                      StatementDestructive,
		"update users set name = 'x'":                       StatementDestructive,
		"DELETE FROM users":                                 StatementDestructive,
		"TRUNCATE users":                                    StatementDestructive,
		"SET statement_timeout = 0":                         StatementDestructive,
		"CREATE TABLE t (id int)":                           StatementSchemaChange,
		"alter table t add column name text":                StatementSchemaChange,
		"DROP TABLE users":                                  StatementSchemaChange,
		"GRANT SELECT ON users TO reporting":                StatementSchemaChange,
	}
	for stmt, expected := range testdata {
		t.Run(stmt, func(t *testing.T) {
			assert.Equal(t, expected, Classify(stmt))
		})
	}
}

func TestPolicyCheck(t *testing.T) {

	t.Run("read-only", func(t *testing.T) {
		// given
		p := Policy{ReadOnly: true, AllowDestructive: true, AllowSchemaChanges: true}

		// then
		require.NoError(t, p.Check("SELECT 1"))
		require.NoError(t, p.Check("SELECT 1; SELECT 2;"))
		err := p.Check("SELECT 1; DROP TABLE users")
		require.ErrorIs(t, err, ErrQueryNotAllowed)
		assert.EqualError(t, err, "query not allowed: server is in read-only mode, only SELECT-like statements are accepted")
	})

	t.Run("destructive gating", func(t *testing.T) {
		// given
		p := Policy{AllowSchemaChanges: true}

		// then
		require.NoError(t, p.Check("CREATE INDEX idx ON users (name)"))
		err := p.Check("DELETE FROM users")
		require.ErrorIs(t, err, ErrQueryNotAllowed)
		assert.EqualError(t, err, "query not allowed: destructive operations are disabled")
	})

	t.Run("schema change gating", func(t *testing.T) {
		// given
		p := Policy{AllowDestructive: true}

		// then
		require.NoError(t, p.Check("UPDATE users SET active = false"))
		err := p.Check("ALTER TABLE users DROP COLUMN active")
		require.ErrorIs(t, err, ErrQueryNotAllowed)
		assert.EqualError(t, err, "query not allowed: schema changes are disabled")
	})

	t.Run("everything allowed", func(t *testing.T) {
		// given
		p := Policy{AllowDestructive: true, AllowSchemaChanges: true}

		// then
		require.NoError(t, p.Check("DROP TABLE users; INSERT INTO audit VALUES (1)"))
	})

	t.Run("empty", func(t *testing.T) {
		// given
		p := Policy{}

		// then
		err := p.Check("  ; -- nothing\n")
		require.ErrorIs(t, err, ErrQueryNotAllowed)
		assert.EqualError(t, err, "query not allowed: empty query")
	})
}

func TestIsSingleStatement(t *testing.T) {
	assert.True(t, IsSingleStatement("SELECT 1"))
	assert.True(t, IsSingleStatement("SELECT 1;"))
	assert.False(t, IsSingleStatement("SELECT 1; SELECT 2"))
	assert.False(t, IsSingleStatement(""))
}
