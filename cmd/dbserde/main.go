package main

import (
	"github.com/alecthomas/kong"
	"github.com/block/dbserde/pkg/inspect"
)

var cli struct {
	Inspect inspect.InspectCmd `cmd:"" help:"Show the db type and converter resolved for every column of a table."`
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("dbserde"),
		kong.Description("dbserde: inspect how MySQL columns are mapped"),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run())
}
