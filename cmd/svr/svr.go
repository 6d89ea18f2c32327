package main

import (
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/zintix-labs/monocal/artifact"
	"github.com/zintix-labs/monocal/logger"
	"github.com/zintix-labs/monocal/server"
)

var cfg *config = new(config)

type config struct {
	addr     string
	artifact string
	seed     int64
	prod     bool
}

func bindVar() {
	flag.StringVar(&cfg.addr, "addr", "", "listen address (default :5810)")
	flag.StringVar(&cfg.artifact, "artifact", "", "optional calibration artifact to serve (json or zstd)")
	flag.Int64Var(&cfg.seed, "seed", 0, "seed for /v1/calibrate cores (0 = random per request)")
	flag.BoolVar(&cfg.prod, "prod", false, "json logs on stdout instead of dev text logs")
	flag.Parse()
}

func main() {
	bindVar()

	mode := logger.ModeDev
	if cfg.prod {
		mode = logger.ModeProd
	}
	lg := logger.NewDefaultLogger(mode)

	var rec *artifact.Record
	if cfg.artifact != "" {
		f, err := os.Open(cfg.artifact)
		if err != nil {
			log.Fatal(err)
		}
		rec, err = artifact.Read(f)
		_ = f.Close()
		if err != nil {
			log.Fatal(err)
		}
	}

	svr, err := server.New(&server.Config{
		Addr:   cfg.addr,
		Log:    lg,
		Record: rec,
		Seed:   cfg.seed,
	})
	if err != nil {
		log.Fatal(err)
	}

	lg.Info("[monocal] listening on http://localhost" + svr.Address())
	if err := svr.Run(); err != nil {
		lg.Error("server stopped:", slog.Any("err", err))
	}
}
