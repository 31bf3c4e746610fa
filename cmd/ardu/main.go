package main

//go-build: CGO_ENABLED=0

import (
	"github.com/robotalks/ardubridge/pkg/bridge"
	"github.com/robotalks/ardubridge/pkg/cli/sh"
	"github.com/robotalks/ardubridge/pkg/manifest"
	"github.com/robotalks/ardubridge/pkg/remote/endpoint"
)

func init() {
	bridge.SetupFlags()
	manifest.SetupFlags()
	endpoint.SetupFlags()
}

func main() {
	sh.Main()
}
