package mapping

import (
	"errors"
	"os"
	"reflect"
	"testing"

	"github.com/block/dbserde/pkg/converters"
	"github.com/block/dbserde/pkg/serde"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
	os.Exit(m.Run())
}

type Beer struct {
	ID             int    `db:"id"`
	Name           string `db:"name"`
	Style          string `db:"style"`
	IsNullableBool *bool  `db:"is_nullable_bool"`
}

type Order struct {
	ID    int    `db:"id"`
	Beers []Beer `db:"beers"`
}

// fakeRows serves fixed rows, like *sql.Rows does with a driver that
// returns []byte for text columns.
type fakeRows struct {
	columns []string
	types   []serde.DbType
	data    [][]any
	pos     int
	err     error
}

func (r *fakeRows) Columns() ([]string, error) { return r.columns, nil }

func (r *fakeRows) DbTypes() ([]serde.DbType, error) { return r.types, nil }

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.pos-1]
	if len(dest) != len(row) {
		return errors.New("wrong number of destinations")
	}
	for i, v := range row {
		*dest[i].(*any) = v
	}
	return nil
}

func (r *fakeRows) Err() error { return r.err }

func styleEnum() *converters.Enum {
	return converters.NewEnum(map[string]int64{"One": 1, "Two": 2, "Three": 3})
}

func paramByName(t *testing.T, params []Param, name string) Param {
	t.Helper()
	p, ok := lookupParam(params, name)
	require.True(t, ok, "no param %q", name)
	return p
}

func TestEncodedValueRoundTrip(t *testing.T) {
	r := serde.NewRegistry()
	require.NoError(t, serde.RegisterFor[Beer](r, styleEnum(), "Style"))
	m := New(r)

	params, err := m.Params(&Beer{ID: 1, Name: "Pils", Style: "Two"})
	require.NoError(t, err)
	style := paramByName(t, params, "style")
	assert.Equal(t, int64(2), style.Value)
	assert.Equal(t, serde.Int32, style.DbType)
	assert.Equal(t, int64(1), paramByName(t, params, "id").Value)
	assert.Equal(t, "Pils", paramByName(t, params, "name").Value)

	rows := &fakeRows{
		columns: []string{"id", "name", "style"},
		types:   []serde.DbType{serde.Int32, serde.String, serde.Int32},
		data:    [][]any{{int64(1), []byte("Pils"), style.Value}},
	}
	var beers []Beer
	require.NoError(t, m.ScanAll(rows, &beers))
	require.Len(t, beers, 1)
	assert.Equal(t, Beer{ID: 1, Name: "Pils", Style: "Two"}, beers[0])
}

func TestUnknownCodeReadsAsNull(t *testing.T) {
	r := serde.NewRegistry()
	require.NoError(t, serde.RegisterFor[Beer](r, styleEnum(), "Style"))
	m := New(r)

	rows := &fakeRows{
		columns: []string{"style"},
		types:   []serde.DbType{serde.Int32},
		data:    [][]any{{int64(42)}},
	}
	require.True(t, rows.Next())
	beer := Beer{Style: "stale"}
	require.NoError(t, m.ScanRow(rows, &beer))
	assert.Empty(t, beer.Style)
}

func TestNullableBoolRoundTrip(t *testing.T) {
	r := serde.NewRegistry()
	require.NoError(t, r.Register(nil, converters.NullableBool{}, ""))
	m := New(r)

	params, err := m.Params(Beer{ID: 1})
	require.NoError(t, err)
	p := paramByName(t, params, "is_nullable_bool")
	assert.Nil(t, p.Value)
	assert.Equal(t, serde.Boolean, p.DbType)

	rows := &fakeRows{
		columns: []string{"id", "is_nullable_bool"},
		types:   []serde.DbType{serde.Int32, serde.Int16},
		data: [][]any{
			{int64(1), nil},
			{int64(2), []byte("1")},
			{int64(3), []byte("0")},
		},
	}
	var beers []*Beer
	require.NoError(t, m.ScanAll(rows, &beers))
	require.Len(t, beers, 3)
	assert.Nil(t, beers[0].IsNullableBool)
	require.NotNil(t, beers[1].IsNullableBool)
	assert.True(t, *beers[1].IsNullableBool)
	require.NotNil(t, beers[2].IsNullableBool)
	assert.False(t, *beers[2].IsNullableBool)
}

func TestTrimOnRead(t *testing.T) {
	r := serde.NewRegistry()
	require.NoError(t, serde.RegisterFor[Beer](r, converters.TrimRight{}, "Name"))
	m := New(r)

	// writes are untouched
	params, err := m.Params(Beer{Name: "Trim      "})
	require.NoError(t, err)
	assert.Equal(t, "Trim      ", paramByName(t, params, "name").Value)

	rows := &fakeRows{
		columns: []string{"name", "style"},
		types:   []serde.DbType{serde.String, serde.String},
		data:    [][]any{{[]byte("Trim      "), []byte("Ale   ")}},
	}
	require.True(t, rows.Next())
	var beer Beer
	require.NoError(t, m.ScanRow(rows, &beer))
	assert.Equal(t, "Trim", beer.Name)
	// only the scoped field is trimmed
	assert.Equal(t, "Ale   ", beer.Style)
}

func TestTableValuedRoundTrip(t *testing.T) {
	r := serde.NewRegistry()
	require.NoError(t, serde.RegisterFor[Beer](r, styleEnum(), "Style"))
	m := New(r)

	order := Order{ID: 7, Beers: []Beer{
		{ID: 1, Name: "Pils", Style: "Two"},
		{ID: 2, Name: "Stout", Style: "Three"},
	}}
	params, err := m.Params(order)
	require.NoError(t, err)
	p := paramByName(t, params, "beers")
	assert.Equal(t, serde.Structured, p.DbType)
	table, ok := p.Value.(*Table)
	require.True(t, ok)
	assert.Equal(t, []string{"id", "name", "style", "is_nullable_bool"}, table.Columns)
	assert.Equal(t, serde.Int32, table.DbTypes[2])
	assert.Equal(t, []any{int64(1), "Pils", int64(2), nil}, table.Rows[0])

	value, err := table.Value()
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"id":1,"name":"Pils","style":2,"is_nullable_bool":null},
		{"id":2,"name":"Stout","style":3,"is_nullable_bool":null}
	]`, value.(string))

	var back []Beer
	require.NoError(t, m.ReadTable([]byte(value.(string)), &back))
	assert.Equal(t, order.Beers, back)

	// the same document read from a JSON column into the record
	rows := &fakeRows{
		columns: []string{"id", "beers"},
		types:   []serde.DbType{serde.Int32, serde.JSON},
		data:    [][]any{{int64(7), []byte(value.(string))}},
	}
	var orders []Order
	require.NoError(t, m.ScanAll(rows, &orders))
	require.Len(t, orders, 1)
	assert.Equal(t, order, orders[0])
}

func TestTableValuedWithDeclaredJSONColumn(t *testing.T) {
	r := serde.NewRegistry()
	require.NoError(t, serde.RegisterFor[Beer](r, styleEnum(), "Style"))
	m := New(r)
	m.Columns = map[string]serde.DbType{"id": serde.String, "beers": serde.JSON}

	order := Order{ID: 7, Beers: []Beer{{ID: 1, Name: "Pils", Style: "Two"}}}
	params, err := m.Params(order)
	require.NoError(t, err)
	p := paramByName(t, params, "beers")
	assert.Equal(t, serde.Structured, p.DbType)
	table, ok := p.Value.(*Table)
	require.True(t, ok)
	// the outer declaration of id does not reach the rows
	assert.Equal(t, []serde.DbType{serde.Int64, serde.String, serde.Int32, serde.Boolean}, table.DbTypes)
	assert.Equal(t, []any{int64(1), "Pils", int64(2), nil}, table.Rows[0])

	value, err := table.Value()
	require.NoError(t, err)
	rows := &fakeRows{
		columns: []string{"id", "beers"},
		types:   []serde.DbType{serde.Unknown, serde.Unknown},
		data:    [][]any{{[]byte("7"), []byte(value.(string))}},
	}
	var orders []Order
	require.NoError(t, m.ScanAll(rows, &orders))
	require.Len(t, orders, 1)
	assert.Equal(t, order, orders[0])
}

func TestTableOfPointers(t *testing.T) {
	m := New(serde.NewRegistry())
	beers := []*Beer{{ID: 1}, nil}
	table, err := m.Table(beers)
	require.NoError(t, err)
	require.Len(t, table.Rows, 2)
	assert.Nil(t, table.Rows[1])

	value, err := table.Value()
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":1,"name":"","style":"","is_nullable_bool":null},null]`, value.(string))

	var back []*Beer
	require.NoError(t, m.ReadTable([]byte(value.(string)), &back))
	assert.Equal(t, beers, back)

	back = nil
	require.NoError(t, m.ReadTable([]byte(`[{"id":1,"unknown":"x"},{}]`), &back))
	require.Len(t, back, 2)
	assert.Equal(t, &Beer{ID: 1}, back[0])
	// an empty object is a row, not a null one
	assert.Equal(t, &Beer{}, back[1])

	var values []Beer
	require.NoError(t, m.ReadTable([]byte(`[null]`), &values))
	assert.Equal(t, []Beer{{}}, values)

	_, err = m.Table(Beer{})
	assert.ErrorIs(t, err, ErrNotSlice)
	assert.ErrorIs(t, m.ReadTable([]byte(`[]`), back), ErrNotPointer)
	assert.Error(t, m.ReadTable([]byte(`{`), &back))
}

func TestClearAllRestoresDefault(t *testing.T) {
	r := serde.NewRegistry()
	require.NoError(t, serde.RegisterFor[Beer](r, styleEnum(), "Style"))
	m := New(r)

	params, err := m.Params(Beer{Style: "Two"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), paramByName(t, params, "style").Value)

	r.ClearAll()
	params, err = m.Params(Beer{Style: "Two"})
	require.NoError(t, err)
	p := paramByName(t, params, "style")
	assert.Equal(t, "Two", p.Value)
	assert.Equal(t, serde.String, p.DbType)
}

func TestScopedRegistration(t *testing.T) {
	r := serde.NewRegistry()
	m := New(r)

	scope := r.Scope()
	require.NoError(t, scope.Register(serde.TypeOf[Beer](), styleEnum(), "Style"))
	params, err := m.Params(Beer{Style: "One"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), paramByName(t, params, "style").Value)
	scope.Close()

	params, err = m.Params(Beer{Style: "One"})
	require.NoError(t, err)
	assert.Equal(t, "One", paramByName(t, params, "style").Value)
}

func TestFieldScopedBeatsTypeWide(t *testing.T) {
	upper := converters.Funcs[string, string]{
		ToDB: func(s string) (string, error) { return "wide:" + s, nil },
	}
	scoped := converters.Funcs[string, string]{
		ToDB: func(s string) (string, error) { return "scoped:" + s, nil },
	}
	r := serde.NewRegistry()
	require.NoError(t, serde.RegisterFor[Beer](r, scoped, "Name"))
	require.NoError(t, serde.RegisterFor[Beer](r, upper, ""))
	m := New(r)

	params, err := m.Params(Beer{Name: "a", Style: "b"})
	require.NoError(t, err)
	assert.Equal(t, "scoped:a", paramByName(t, params, "name").Value)
	assert.Equal(t, "wide:b", paramByName(t, params, "style").Value)
}

func TestDeclaredColumnTypes(t *testing.T) {
	// converts only when the column is declared as an integer
	toInt := converters.Funcs[string, int64]{
		DbTypes: []serde.DbType{serde.Int32},
		ToDB:    func(s string) (int64, error) { return int64(len(s)), nil },
	}
	r := serde.NewRegistry()
	require.NoError(t, r.Register(nil, toInt, ""))

	m := New(r)
	params, err := m.Params(Beer{Name: "abc"})
	require.NoError(t, err)
	assert.Equal(t, "abc", paramByName(t, params, "name").Value)

	m.Columns = map[string]serde.DbType{"NAME": serde.Int32}
	params, err = m.Params(Beer{Name: "abc"})
	require.NoError(t, err)
	p := paramByName(t, params, "name")
	assert.Equal(t, int64(3), p.Value)
	assert.Equal(t, serde.Int32, p.DbType)
}

func TestConverterErrorsNameTheField(t *testing.T) {
	failing := converters.Funcs[string, string]{
		ToDB:   func(string) (string, error) { return "", errors.New("cannot encode") },
		FromDB: func(string) (string, error) { return "", errors.New("cannot decode") },
	}
	r := serde.NewRegistry()
	require.NoError(t, serde.RegisterFor[Beer](r, failing, "Name"))
	m := New(r)

	_, err := m.Params(Beer{Name: "x"})
	require.Error(t, err)
	assert.ErrorContains(t, err, "mapping.Beer.Name")
	assert.ErrorContains(t, err, "cannot encode")

	rows := &fakeRows{
		columns: []string{"name"},
		types:   []serde.DbType{serde.String},
		data:    [][]any{{[]byte("x")}},
	}
	var beers []Beer
	err = m.ScanAll(rows, &beers)
	require.Error(t, err)
	assert.ErrorContains(t, err, "cannot decode")
}

func TestArgs(t *testing.T) {
	m := New(serde.NewRegistry())
	beer := Beer{ID: 3, Name: "Lager"}

	args, err := m.Args(beer)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(3), "Lager", "", nil}, args)

	args, err = m.Args(beer, "name", "ID")
	require.NoError(t, err)
	assert.Equal(t, []any{"Lager", int64(3)}, args)

	_, err = m.Args(beer, "abv")
	assert.ErrorContains(t, err, `no field maps to column "abv"`)

	_, err = m.Args((*Beer)(nil))
	assert.ErrorIs(t, err, ErrNotStruct)
	_, err = m.Args(42)
	assert.ErrorIs(t, err, ErrNotStruct)
}

func TestScanErrors(t *testing.T) {
	m := New(serde.NewRegistry())
	rows := &fakeRows{columns: []string{"id"}, data: [][]any{{[]byte("x")}}}

	var beers []Beer
	assert.ErrorIs(t, m.ScanAll(rows, beers), ErrNotPointer)
	var beer Beer
	assert.ErrorIs(t, m.ScanAll(rows, &beer), ErrNotSlice)
	assert.ErrorIs(t, m.ScanRow(rows, beer), ErrNotPointer)

	err := m.ScanAll(rows, &beers)
	assert.ErrorContains(t, err, "cannot assign []uint8 to int")

	failed := &fakeRows{columns: []string{"id"}, err: errors.New("connection lost")}
	assert.EqualError(t, m.ScanAll(failed, &beers), "connection lost")
}

func TestDefaultRegistryIsUsed(t *testing.T) {
	t.Cleanup(serde.ClearAll)
	require.NoError(t, serde.Register(serde.TypeOf[Beer](), styleEnum(), "Style"))

	var m Mapper
	params, err := m.Params(Beer{Style: "Three"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), paramByName(t, params, "style").Value)
}

func TestFieldOfNilEmbedded(t *testing.T) {
	type Base struct {
		Created string `db:"created"`
	}
	type Row struct {
		*Base
		ID int `db:"id"`
	}
	m := New(serde.NewRegistry())
	args, err := m.Args(Row{ID: 1})
	require.NoError(t, err)
	assert.Equal(t, []any{nil, int64(1)}, args)

	rows := &fakeRows{columns: []string{"created", "id"}, data: [][]any{{[]byte("today"), int64(1)}}}
	var out []Row
	require.NoError(t, m.ScanAll(rows, &out))
	require.Len(t, out, 1)
	require.NotNil(t, out[0].Base)
	assert.Equal(t, "today", out[0].Created)
	assert.Equal(t, reflect.TypeFor[Row](), reflect.TypeOf(out[0]))
}
