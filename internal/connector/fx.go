package connector

import "go.uber.org/fx"

var Module = fx.Module("connector.registry",
	fx.Provide(NewRegistry),
)
