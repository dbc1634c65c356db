package printer

import (
	"github.com/smallbiznis/printfleet/internal/printer/repository"
	"github.com/smallbiznis/printfleet/internal/printer/service"
	"go.uber.org/fx"
)

var Module = fx.Module("printer.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
