package units

import (
	"embed"

	"github.com/helmsman-hq/helmsman/modules/units/infrastructure/persistence"
	"github.com/helmsman-hq/helmsman/modules/units/services"
	"github.com/helmsman-hq/helmsman/pkg/application"
)

//go:embed infrastructure/persistence/schema/units-schema.sql
var migrationFiles embed.FS

func NewModule() application.Module {
	return &Module{}
}

type Module struct{}

func (m *Module) Register(app application.Application) error {
	app.RegisterSchema(&migrationFiles)

	unitRepo := persistence.NewUnitRepository()
	ancestryRepo := persistence.NewAncestryRepository()
	assignmentRepo := persistence.NewAssignmentRepository()

	hierarchyService := services.NewHierarchyService(
		unitRepo,
		ancestryRepo,
		app.EventPublisher(),
	)

	app.RegisterServices(
		hierarchyService,
		services.NewUnitService(
			unitRepo,
			ancestryRepo,
			assignmentRepo,
			hierarchyService,
			app.EventPublisher(),
		),
		services.NewAssignmentService(
			unitRepo,
			assignmentRepo,
			persistence.NewUserResolver(),
			app.EventPublisher(),
		),
	)

	return nil
}

func (m *Module) Name() string {
	return "units"
}
