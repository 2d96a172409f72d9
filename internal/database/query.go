package database

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/koustreak/saudedash/internal/errs"
)

// validOps is the allowlist of comparison operators for predicates.
// Any operator not in this list is rejected to prevent SQL injection
// through the operator position (which cannot be parameterized).
var validOps = map[string]bool{
	"=":  true,
	"!=": true,
	"<>": true,
	"<":  true,
	">":  true,
	"<=": true,
	">=": true,
}

// columnRef matches a bare or alias-qualified column name such as
// "f.id_localidade". Predicate columns must match it.
var columnRef = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Statement builds a parameterized SQL statement from fixed fragments and
// optional predicates. Values are never interpolated into the SQL string;
// each one becomes the next $n placeholder, so args come out in the same
// order the predicates were appended.
//
// Usage:
//
//	st := database.NewStatement().
//	    Write("SELECT id_sexo, qtd_internacoes FROM fato_saude_mensal f").
//	    Write(" WHERE f.id_tipo_evento = 5").
//	    AndIf(locality > 0, "f.id_localidade", "=", locality)
//	sql, args, err := st.Build()
type Statement struct {
	sb   strings.Builder
	args []any
	err  error
}

// NewStatement returns an empty Statement.
func NewStatement() *Statement {
	return &Statement{}
}

// Write appends a fixed SQL fragment verbatim.
func (s *Statement) Write(sql string) *Statement {
	s.sb.WriteString(sql)
	return s
}

// Writef appends a formatted fragment. Only closed constants and quoted
// identifiers may be formatted in; values go through Placeholder.
func (s *Statement) Writef(format string, a ...any) *Statement {
	fmt.Fprintf(&s.sb, format, a...)
	return s
}

// Placeholder binds value and returns its placeholder ($1, $2, …).
func (s *Statement) Placeholder(value any) string {
	s.args = append(s.args, value)
	return fmt.Sprintf("$%d", len(s.args))
}

// And appends " AND <column> <op> $n" and binds value.
func (s *Statement) And(column, op string, value any) *Statement {
	if s.err != nil {
		return s
	}
	if !validOps[op] {
		s.err = errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("unsupported predicate operator: %q", op))
		return s
	}
	if !columnRef.MatchString(column) {
		s.err = errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("invalid predicate column: %q", column))
		return s
	}
	s.sb.WriteString(" AND ")
	s.sb.WriteString(column)
	s.sb.WriteString(" ")
	s.sb.WriteString(op)
	s.sb.WriteString(" ")
	s.sb.WriteString(s.Placeholder(value))
	return s
}

// AndIf calls And only when cond holds. An absent filter leaves the
// statement untouched.
func (s *Statement) AndIf(cond bool, column, op string, value any) *Statement {
	if !cond {
		return s
	}
	return s.And(column, op, value)
}

// Args returns the values bound so far.
func (s *Statement) Args() []any {
	return s.args
}

// Build produces the final SQL string and argument slice.
// Returns an error if any predicate was rejected.
func (s *Statement) Build() (string, []any, error) {
	if s.err != nil {
		return "", nil, s.err
	}
	return s.sb.String(), s.args, nil
}

// QuoteIdent wraps a SQL identifier in double-quotes (ANSI standard).
// This safely handles reserved words and mixed-case names.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteLiteral wraps a string in single quotes for statements that cannot
// take parameters, such as SET.
func QuoteLiteral(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}
