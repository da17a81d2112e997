package main

import (
	"flag"

	dig_container "github.com/trezcool/calisma/apps/api/di/dig"
	"github.com/trezcool/calisma/core"
)

func main() {
	inmem := flag.Bool("inmem", false, "keep the database in memory (the data directory is still used)")
	flag.Parse()

	startWithDig(func() *core.Config {
		conf := core.NewConfig()
		if *inmem {
			conf.Database.Engine = dig_container.EngineMemory
		}
		return conf
	})
}
