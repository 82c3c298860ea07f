package inspect

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/block/dbserde/pkg/schema"
	"github.com/block/dbserde/pkg/serde"
	"github.com/block/dbserde/pkg/testutils"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
	os.Exit(m.Run())
}

const beersTable = `CREATE TABLE beers (
	id INT NOT NULL PRIMARY KEY,
	name VARCHAR(50) NOT NULL,
	style INT NULL,
	is_nullable_bool TINYINT(1) NULL
)`

func TestPrint(t *testing.T) {
	tbl, err := schema.ParseCreateTable(beersTable)
	require.NoError(t, err)

	var buf bytes.Buffer
	cmd := &InspectCmd{TrimStrings: true, NullBools: true, out: &buf}
	registry := serde.NewRegistry()
	require.NoError(t, cmd.register(registry))
	require.NoError(t, cmd.print(registry, []*schema.Table{tbl}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, []string{"COLUMN", "TYPE", "DBTYPE", "WRITE", "READ"}, strings.Fields(lines[0]))
	assertRow(t, lines[2], "beers.name", "String", "default", "converters.TrimRight")
	assertRow(t, lines[3], "beers.style", "Int32", "default", "default")
	assertRow(t, lines[4], "beers.is_nullable_bool", "Boolean", "converters.NullableBool", "converters.NullableBool")
}

// assertRow compares every column except the declared type, whose spelling
// depends on the parser version.
func assertRow(t *testing.T, line string, expected ...string) {
	t.Helper()
	fields := strings.Fields(line)
	require.Len(t, fields, 5)
	assert.Equal(t, expected, append(fields[:1:1], fields[2:]...))
}

func TestGoType(t *testing.T) {
	assert.Equal(t, reflect.TypeFor[string](), goType(schema.Column{DbType: serde.String}))
	assert.Equal(t, reflect.TypeFor[*bool](), goType(schema.Column{DbType: serde.Boolean, Nullable: true}))
	assert.Equal(t, reflect.TypeFor[[]byte](), goType(schema.Column{DbType: serde.Binary, Nullable: true}))
	assert.Equal(t, reflect.TypeFor[int64](), goType(schema.Column{DbType: serde.Int64}))
}

func TestConfParams(t *testing.T) {
	conf, err := newConfParams("")
	require.NoError(t, err)
	cmd := &InspectCmd{Host: "127.0.0.1:3306", Username: "dbserde", Password: "dbserde"}
	conf.apply(cmd)
	assert.Equal(t, "127.0.0.1:3306", cmd.Host)

	path := filepath.Join(t.TempDir(), "my.cnf")
	require.NoError(t, os.WriteFile(path, []byte(`[client]
host = db.example.com
port = 3307
user = app
password =
database = beers
tls-mode = REQUIRED
`), 0o600))
	conf, err = newConfParams(path)
	require.NoError(t, err)
	conf.apply(cmd)
	assert.Equal(t, "db.example.com:3307", cmd.Host)
	assert.Equal(t, "app", cmd.Username)
	assert.Empty(t, cmd.Password)
	assert.Equal(t, "beers", cmd.Database)
	assert.Equal(t, "REQUIRED", cmd.TLSMode)

	_, err = newConfParams(filepath.Join(t.TempDir(), "missing.cnf"))
	assert.Error(t, err)

	var nilConf *confParams
	assert.NotPanics(t, func() { nilConf.apply(cmd) })
}

func TestRun(t *testing.T) {
	testutils.RequireMySQL(t)
	testutils.RunSQL(t, "DROP TABLE IF EXISTS inspect_beers")
	testutils.RunSQL(t, strings.Replace(beersTable, "beers", "inspect_beers", 1))

	cfg, err := mysql.ParseDSN(testutils.DSN())
	require.NoError(t, err)
	var buf bytes.Buffer
	cmd := &InspectCmd{
		Host:     cfg.Addr,
		Username: cfg.User,
		Password: cfg.Passwd,
		Database: cfg.DBName,
		Tables:   []string{"inspect_beers"},
		Threads:  2,
		TLSMode:  "PREFERRED",
		out:      &buf,
	}
	require.NoError(t, cmd.Run())
	assert.Contains(t, buf.String(), "inspect_beers.style")
}
