// Package inspect implements the inspect command, which shows how the
// columns of a table would be mapped.
package inspect

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"reflect"
	"text/tabwriter"
	"time"

	"github.com/block/dbserde/pkg/converters"
	"github.com/block/dbserde/pkg/dbconn"
	"github.com/block/dbserde/pkg/schema"
	"github.com/block/dbserde/pkg/serde"
	"github.com/block/dbserde/pkg/utils"
	"golang.org/x/sync/errgroup"
)

type InspectCmd struct {
	Host        string   `name:"host" help:"Hostname" optional:"" default:"127.0.0.1:3306"`
	Username    string   `name:"username" help:"User" optional:"" default:"dbserde"`
	Password    string   `name:"password" help:"Password" optional:"" default:"dbserde"`
	Database    string   `name:"database" help:"Database" optional:"" default:"test"`
	Tables      []string `name:"table" help:"Table to inspect, may be repeated" required:""`
	Conf        string   `name:"conf" help:"MySQL conf file; the [client] section overrides the connection flags" optional:"" type:"existingfile"`
	Threads     int      `name:"threads" help:"Number of tables loaded concurrently" optional:"" default:"4"`
	TrimStrings bool     `name:"trim-strings" help:"Register the trailing whitespace trimming converter for text columns" optional:"" default:"false"`
	NullBools   bool     `name:"nullable-bools" help:"Register the nullable boolean converter for boolean and integer columns" optional:"" default:"false"`
	// TLS Configuration
	TLSMode            string `name:"tls-mode" help:"TLS connection mode (case insensitive): DISABLED, PREFERRED (default), REQUIRED, VERIFY_CA, VERIFY_IDENTITY" optional:"" default:"PREFERRED"`
	TLSCertificatePath string `name:"tls-ca" help:"Path to custom TLS CA certificate file" optional:""`

	out io.Writer
}

func (cmd *InspectCmd) Run() error {
	ctx := context.Background()

	conf, err := newConfParams(cmd.Conf)
	if err != nil {
		return fmt.Errorf("could not read conf file %s: %w", cmd.Conf, err)
	}
	conf.apply(cmd)

	if err := cmd.register(serde.Default()); err != nil {
		return err
	}

	config := dbconn.NewDBConfig()
	config.TLSMode = cmd.TLSMode
	config.TLSCertificatePath = cmd.TLSCertificatePath
	config.MaxOpenConnections = max(cmd.Threads, 1)
	db, err := dbconn.New(dbconn.DSN(cmd.Host, cmd.Username, cmd.Password, cmd.Database), config)
	if err != nil {
		return fmt.Errorf("could not connect to %s: %w", utils.StripPort(cmd.Host), err)
	}
	defer utils.CloseAndLog(db)

	startTime := time.Now()
	tables := make([]*schema.Table, len(cmd.Tables))
	g, errGrpCtx := errgroup.WithContext(ctx)
	g.SetLimit(max(cmd.Threads, 1))
	for i, name := range cmd.Tables {
		g.Go(func() error {
			t, err := schema.Load(errGrpCtx, db, name)
			if err != nil {
				return err
			}
			tables[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	slog.Debug("loaded table definitions", "tables", len(tables), "duration", time.Since(startTime))

	return cmd.print(serde.Default(), tables)
}

func (cmd *InspectCmd) register(registry *serde.Registry) error {
	if cmd.TrimStrings {
		if err := registry.Register(nil, converters.TrimRight{}, ""); err != nil {
			return err
		}
	}
	if cmd.NullBools {
		if err := registry.Register(nil, converters.NullableBool{}, ""); err != nil {
			return err
		}
	}
	return nil
}

func (cmd *InspectCmd) print(registry *serde.Registry, tables []*schema.Table) error {
	out := cmd.out
	if out == nil {
		out = os.Stdout
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "COLUMN\tTYPE\tDBTYPE\tWRITE\tREAD")
	for _, t := range tables {
		for _, c := range t.Columns {
			f := serde.Field{
				Name:   c.Name,
				Type:   goType(c),
				DbType: c.DbType,
			}
			fmt.Fprintf(w, "%s.%s\t%s\t%s\t%s\t%s\n", t.Name, c.Name, c.Type, c.DbType,
				converterName(registry.ResolveForWrite(f)), converterName(registry.ResolveForRead(f)))
		}
	}
	return w.Flush()
}

func converterName(c serde.Converter) string {
	if c == nil {
		return "default"
	}
	return fmt.Sprintf("%T", c)
}

// goType returns the Go type a record field for c would usually have.
// Nullable columns map to pointers.
func goType(c schema.Column) reflect.Type {
	var t reflect.Type
	switch c.DbType {
	case serde.String, serde.AnsiString, serde.Decimal:
		t = reflect.TypeFor[string]()
	case serde.Boolean:
		t = reflect.TypeFor[bool]()
	case serde.Int16:
		t = reflect.TypeFor[int16]()
	case serde.Int32:
		t = reflect.TypeFor[int32]()
	case serde.Int64:
		t = reflect.TypeFor[int64]()
	case serde.UInt64:
		t = reflect.TypeFor[uint64]()
	case serde.Single:
		t = reflect.TypeFor[float32]()
	case serde.Double:
		t = reflect.TypeFor[float64]()
	case serde.Date, serde.Time, serde.DateTime:
		t = reflect.TypeFor[time.Time]()
	case serde.JSON:
		t = reflect.TypeFor[map[string]any]()
	default:
		t = reflect.TypeFor[[]byte]()
	}
	if c.Nullable && t.Kind() != reflect.Slice && t.Kind() != reflect.Map {
		t = reflect.PointerTo(t)
	}
	return t
}
