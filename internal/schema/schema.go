package schema

import "context"

// Reader is the interface for introspecting a database schema
type Reader interface {
	// ListTables returns all user tables in the given schema (e.g. "public")
	ListTables(ctx context.Context, schema string) ([]string, error)

	// TableExists checks whether a table exists
	TableExists(ctx context.Context, schema, table string) (bool, error)

	// ColumnNames returns the column names of a table in ordinal order
	ColumnNames(ctx context.Context, schema, table string) ([]string, error)

	// InspectTable returns full column info for a table
	InspectTable(ctx context.Context, schema, table string) (*TableInfo, error)

	// InspectTables returns the given tables plus their foreign keys
	InspectTables(ctx context.Context, schema string, tables []string) (*SchemaInfo, error)
}

var _ Reader = (*PgIntrospector)(nil)
