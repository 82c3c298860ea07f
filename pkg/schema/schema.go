// Package schema reads declared column types from CREATE TABLE statements,
// so that converters can be resolved against the real column type rather
// than one inferred from the Go field.
package schema

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/block/dbserde/pkg/serde"
	"github.com/block/dbserde/pkg/utils"
	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/mysql"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"
)

// Table is a parsed CREATE TABLE statement.
type Table struct {
	Name    string
	Columns []Column
}

// Column is a column definition.
type Column struct {
	Name       string
	Type       string // e.g. "varchar(255)" or "int(10) unsigned"
	DbType     serde.DbType
	Nullable   bool
	EnumValues []string
}

// ParseCreateTable parses a single CREATE TABLE statement.
func ParseCreateTable(sql string) (*Table, error) {
	p := parser.New()
	stmts, _, err := p.Parse(sql, "", "")
	if err != nil {
		return nil, fmt.Errorf("failed to parse SQL: %w", err)
	}
	if len(stmts) != 1 {
		return nil, fmt.Errorf("expected exactly one statement, got %d", len(stmts))
	}
	createStmt, ok := stmts[0].(*ast.CreateTableStmt)
	if !ok {
		return nil, fmt.Errorf("expected CREATE TABLE statement, got %T", stmts[0])
	}

	t := &Table{
		Name:    createStmt.Table.Name.String(),
		Columns: make([]Column, 0, len(createStmt.Cols)),
	}
	for _, col := range createStmt.Cols {
		t.Columns = append(t.Columns, parseColumn(col))
	}
	return t, nil
}

func parseColumn(col *ast.ColumnDef) Column {
	column := Column{
		Name:     col.Name.Name.String(),
		Type:     col.Tp.String(),
		Nullable: true,
	}
	column.DbType = serde.FromMySQLType(column.Type)
	if col.Tp.GetType() == mysql.TypeEnum {
		column.EnumValues = col.Tp.GetElems()
	}
	for _, opt := range col.Options {
		switch opt.Tp { //nolint:exhaustive
		case ast.ColumnOptionNotNull, ast.ColumnOptionPrimaryKey:
			column.Nullable = false
		case ast.ColumnOptionNull:
			column.Nullable = true
		}
	}
	return column
}

// Column returns the column called name, or nil.
func (t *Table) Column(name string) *Column {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// DbTypes returns the declared type of every column by column name, in the
// form mapping.Mapper.Columns expects.
func (t *Table) DbTypes() map[string]serde.DbType {
	types := make(map[string]serde.DbType, len(t.Columns))
	for _, c := range t.Columns {
		types[c.Name] = c.DbType
	}
	return types
}

// Load reads the definition of table from db with SHOW CREATE TABLE.
func Load(ctx context.Context, db *sql.DB, table string) (*Table, error) {
	var name, createStmt string
	err := db.QueryRowContext(ctx, "SHOW CREATE TABLE "+utils.QuoteIdentifier(table)).Scan(&name, &createStmt)
	if err != nil {
		return nil, fmt.Errorf("show create table %s: %w", table, err)
	}
	return ParseCreateTable(createStmt)
}
