package database

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/egarcia74/warp-sql-server-mcp/internal/config"
)

// ErrQueryNotAllowed is returned when a statement is rejected by the Policy.
var ErrQueryNotAllowed = errors.New("query not allowed")

// StatementKind classifies a SQL statement by what it may change.
type StatementKind string

const (
	StatementRead         StatementKind = "read"
	StatementDestructive  StatementKind = "destructive"
	StatementSchemaChange StatementKind = "schema_change"
)

var (
	lineComment   = regexp.MustCompile(`--[^\n]*`)
	blockComment  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	dataModifying = regexp.MustCompile(`(?i)\b(INSERT|UPDATE|DELETE|MERGE)\b`)

	readKeywords = map[string]bool{
		"SELECT": true, "WITH": true, "SHOW": true, "EXPLAIN": true, "VALUES": true, "TABLE": true,
	}
	schemaKeywords = map[string]bool{
		"CREATE": true, "ALTER": true, "DROP": true, "GRANT": true, "REVOKE": true,
		"COMMENT": true, "REINDEX": true, "CLUSTER": true, "SECURITY": true,
	}
)

// Policy decides which statements may be executed.
type Policy struct {
	ReadOnly           bool
	AllowDestructive   bool
	AllowSchemaChanges bool
}

// NewPolicy returns the Policy described by cfg.
func NewPolicy(cfg config.SecurityConfig) Policy {
	return Policy{
		ReadOnly:           cfg.ReadOnly,
		AllowDestructive:   cfg.AllowDestructive,
		AllowSchemaChanges: cfg.AllowSchemaChanges,
	}
}

// Check returns an error wrapping ErrQueryNotAllowed when any statement of query is rejected.
func (p Policy) Check(query string) error {
	statements := splitStatements(query)
	if len(statements) == 0 {
		return fmt.Errorf("%w: empty query", ErrQueryNotAllowed)
	}
	for _, stmt := range statements {
		kind := Classify(stmt)
		switch {
		case kind == StatementRead:
			continue
		case p.ReadOnly:
			return fmt.Errorf("%w: server is in read-only mode, only SELECT-like statements are accepted", ErrQueryNotAllowed)
		case kind == StatementSchemaChange && !p.AllowSchemaChanges:
			return fmt.Errorf("%w: schema changes are disabled", ErrQueryNotAllowed)
		case kind == StatementDestructive && !p.AllowDestructive:
			return fmt.Errorf("%w: destructive operations are disabled", ErrQueryNotAllowed)
		}
	}
	return nil
}

// Classify returns the kind of a single statement. Statements that are not
// recognized as reads or schema changes are treated as destructive.
func Classify(stmt string) StatementKind {
	keyword := firstKeyword(stmt)
	switch {
	case readKeywords[keyword]:
		// a CTE or an EXPLAIN ANALYZE may run a data-modifying statement
		if (keyword == "WITH" || keyword == "EXPLAIN") && dataModifying.MatchString(stmt) {
			return StatementDestructive
		}
		return StatementRead
	case schemaKeywords[keyword]:
		return StatementSchemaChange
	default:
		return StatementDestructive
	}
}

// IsSingleStatement reports whether query holds exactly one statement.
func IsSingleStatement(query string) bool {
	return len(splitStatements(query)) == 1
}

func stripComments(query string) string {
	return lineComment.ReplaceAllString(blockComment.ReplaceAllString(query, " "), " ")
}

// splitStatements splits on semicolons. Semicolons inside string literals
// also split, which only makes the policy stricter.
func splitStatements(query string) []string {
	var statements []string
	for _, s := range strings.Split(stripComments(query), ";") {
		if s = strings.TrimSpace(s); s != "" {
			statements = append(statements, s)
		}
	}
	return statements
}

func firstKeyword(stmt string) string {
	stmt = strings.TrimLeft(strings.TrimSpace(stripComments(stmt)), "( \t\r\n")
	end := strings.IndexFunc(stmt, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r == '_')
	})
	if end == -1 {
		end = len(stmt)
	}
	return strings.ToUpper(stmt[:end])
}
