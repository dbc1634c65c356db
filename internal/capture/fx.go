package capture

import (
	"github.com/smallbiznis/printfleet/internal/capture/repository"
	"github.com/smallbiznis/printfleet/internal/capture/service"
	"go.uber.org/fx"
)

var Module = fx.Module("capture.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
