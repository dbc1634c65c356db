package main

import (
	"github.com/smallbiznis/printfleet/internal/bootstrap"
	"go.uber.org/fx"
)

func main() {
	fx.New(bootstrap.API()).Run()
}
