package schema

// ColumnInfo describes a single column in a table
type ColumnInfo struct {
	Name         string  `yaml:"name"`
	DataType     string  `yaml:"data_type"` // postgres type: text, integer, numeric, etc.
	IsNullable   bool    `yaml:"nullable"`
	IsPrimaryKey bool    `yaml:"primary_key,omitempty"`
	IsUnique     bool    `yaml:"unique,omitempty"`
	DefaultValue *string `yaml:"default,omitempty"`    // nil if no default
	MaxLength    *int    `yaml:"max_length,omitempty"` // nil for non-char types
}

// TableInfo describes a table and its columns
type TableInfo struct {
	Schema  string       `yaml:"schema"`
	Name    string       `yaml:"name"`
	Columns []ColumnInfo `yaml:"columns"`
}

// HasColumn reports whether the table has a column called name.
func (t *TableInfo) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// ForeignKey describes a relationship between two tables
type ForeignKey struct {
	Name       string `yaml:"name"`
	FromTable  string `yaml:"from_table"`
	FromColumn string `yaml:"from_column"`
	ToTable    string `yaml:"to_table"`
	ToColumn   string `yaml:"to_column"`
}

// SchemaInfo is the introspected structure of the warehouse tables.
type SchemaInfo struct {
	Tables      []TableInfo  `yaml:"tables"`
	ForeignKeys []ForeignKey `yaml:"foreign_keys,omitempty"`

	// Missing lists expected tables that were not found.
	Missing []string `yaml:"missing,omitempty"`

	// Descriptions maps dimension tables to their resolved description column.
	Descriptions map[string]string `yaml:"description_columns,omitempty"`
}
