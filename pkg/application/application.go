package application

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"reflect"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/helmsman-hq/helmsman/pkg/eventbus"
)

// Module is a self-contained feature area that registers its services
// and schema against the application at startup.
type Module interface {
	Register(app Application) error
	Name() string
}

type Application interface {
	DB() *pgxpool.Pool
	EventPublisher() eventbus.EventBus
	Logger() *logrus.Logger
	RegisterServices(services ...interface{})
	Service(service interface{}) interface{}
	Services() map[reflect.Type]interface{}
	RegisterSchema(files *embed.FS)
	ApplySchema(ctx context.Context) error
	RegisterModules(modules ...Module) error
}

type ApplicationOptions struct {
	Pool     *pgxpool.Pool
	EventBus eventbus.EventBus
	Logger   *logrus.Logger
}

func New(opts *ApplicationOptions) Application {
	return &application{
		pool:           opts.Pool,
		eventPublisher: opts.EventBus,
		logger:         opts.Logger,
		services:       make(map[reflect.Type]interface{}),
	}
}

// application with a dynamically extendable service registry
type application struct {
	pool           *pgxpool.Pool
	eventPublisher eventbus.EventBus
	logger         *logrus.Logger
	services       map[reflect.Type]interface{}
	schemaFiles    []*embed.FS
}

func (app *application) DB() *pgxpool.Pool {
	return app.pool
}

func (app *application) EventPublisher() eventbus.EventBus {
	return app.eventPublisher
}

func (app *application) Logger() *logrus.Logger {
	return app.logger
}

// RegisterServices registers a new service in the application by its type
func (app *application) RegisterServices(services ...interface{}) {
	for _, service := range services {
		serviceType := reflect.TypeOf(service).Elem()
		app.services[serviceType] = service
	}
}

// Service retrieves a service by its type
func (app *application) Service(service interface{}) interface{} {
	serviceType := reflect.TypeOf(service)
	svc, exists := app.services[serviceType]
	if !exists {
		panic(fmt.Sprintf("service %s not found", serviceType.Name()))
	}
	return svc
}

func (app *application) Services() map[reflect.Type]interface{} {
	return app.services
}

func (app *application) RegisterSchema(files *embed.FS) {
	app.schemaFiles = append(app.schemaFiles, files)
}

// ApplySchema executes every registered schema file against the pool.
// Schema files are written to be idempotent.
func (app *application) ApplySchema(ctx context.Context) error {
	for _, schemaFS := range app.schemaFiles {
		err := fs.WalkDir(schemaFS, ".", func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			ddl, err := schemaFS.ReadFile(path)
			if err != nil {
				return err
			}
			if _, err := app.pool.Exec(ctx, string(ddl)); err != nil {
				return fmt.Errorf("apply schema %q: %w", path, err)
			}
			app.logger.WithField("schema", path).Info("applied schema")
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (app *application) RegisterModules(modules ...Module) error {
	for _, module := range modules {
		if err := module.Register(app); err != nil {
			return fmt.Errorf("register module %q: %w", module.Name(), err)
		}
	}
	return nil
}
