package quota

import (
	"github.com/smallbiznis/printfleet/internal/quota/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("quota.repository",
	fx.Provide(repository.Provide),
)
