package modules

import (
	"github.com/helmsman-hq/helmsman/modules/units"
	"github.com/helmsman-hq/helmsman/pkg/application"
)

var BuiltInModules = []application.Module{
	units.NewModule(),
}

func Load(app application.Application, externalModules ...application.Module) error {
	if err := app.RegisterModules(BuiltInModules...); err != nil {
		return err
	}
	return app.RegisterModules(externalModules...)
}
