package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/ardubridge/pkg/bridge"
	"github.com/robotalks/ardubridge/pkg/cli/sh"
	fx "github.com/robotalks/ardubridge/pkg/framework"
	"github.com/robotalks/ardubridge/pkg/manifest"
	"github.com/robotalks/ardubridge/pkg/remote/endpoint"
	"github.com/robotalks/ardubridge/pkg/toolchain"
)

var (
	simulate bool
	noBuild  bool
	fresh    bool
)

func init() {
	bridge.SetupFlags()
	manifest.SetupFlags()
	endpoint.SetupFlags()
	flag.BoolVar(&simulate, "simulate", simulate, "Serve an emulated board.")
	flag.BoolVar(&noBuild, "no-build", noBuild, "Don't compile and upload the sketch.")
	flag.BoolVar(&fresh, "fresh", fresh, "Upload even if the board runs the same sketch.")
}

func main() {
	flag.Parse()
	defer glog.Flush()

	a, err := sh.LoadArduino()
	if err != nil {
		log.Fatalln(err)
	}
	runner := fx.NewRunner().HandleSignals()
	ctx := runner.Context

	if simulate {
		a.Simulate()
	} else {
		if !noBuild {
			res, err := a.Build(ctx, fresh)
			if err != nil {
				log.Fatalln(err)
			}
			if res.Outcome != toolchain.Success {
				log.Fatalf("%s %s: %v", res.Step, res.Outcome, res.Err())
			}
		}
		if err := a.Attach(ctx); err != nil {
			log.Fatalln(err)
		}
	}

	conf := endpoint.Default()
	runner.Go(fx.NamedRun("endpoint", fx.RunFunc(func(ctx context.Context) error {
		return conf.Serve(ctx, a)
	})))
	err = runner.Wait()

	cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if cerr := a.Cleanup(cleanupCtx); cerr != nil {
		glog.Errorf("Cleanup: %v", cerr)
	}
	if err != nil {
		glog.Fatalln(err)
	}
}
