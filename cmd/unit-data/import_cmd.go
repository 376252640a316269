package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/helmsman-hq/helmsman/modules"
	"github.com/helmsman-hq/helmsman/modules/units/domain/aggregates/unit"
	"github.com/helmsman-hq/helmsman/modules/units/domain/entities/assignment"
	"github.com/helmsman-hq/helmsman/modules/units/services"
	"github.com/helmsman-hq/helmsman/pkg/application"
	"github.com/helmsman-hq/helmsman/pkg/composables"
	"github.com/helmsman-hq/helmsman/pkg/configuration"
	"github.com/helmsman-hq/helmsman/pkg/eventbus"
)

type importOptions struct {
	tenantID uuid.UUID
	input    string
	dryRun   bool
}

// unitTreeNode is one unit in the import file, nested by containment.
type unitTreeNode struct {
	Name            string             `json:"name"`
	Type            string             `json:"type"`
	Description     string             `json:"description,omitempty"`
	ExtraAttributes map[string]any     `json:"extraAttributes,omitempty"`
	Tags            map[string]string  `json:"tags,omitempty"`
	Assignments     []assignmentImport `json:"assignments,omitempty"`
	Children        []unitTreeNode     `json:"children,omitempty"`
}

type assignmentImport struct {
	UserID    uuid.UUID  `json:"userId"`
	StartDate *time.Time `json:"startDate,omitempty"`
	EndDate   *time.Time `json:"endDate,omitempty"`
}

type importFile struct {
	Units []unitTreeNode `json:"units"`
}

func newImportCmd() *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a unit forest from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.input, "input", "", "Input JSON file (required)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Validate the input without writing to DB")

	var tenant string
	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant UUID (required)")

	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("input")

	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(strings.TrimSpace(tenant))
		if err != nil {
			return withCode(exitUsage, fmt.Errorf("invalid --tenant: %w", err))
		}
		opts.tenantID = id
		return nil
	}

	return cmd
}

func runImport(ctx context.Context, opts importOptions) error {
	if opts.tenantID == uuid.Nil {
		return withCode(exitUsage, fmt.Errorf("--tenant is required"))
	}

	raw, err := os.ReadFile(opts.input)
	if err != nil {
		return withCode(exitUsage, fmt.Errorf("read input: %w", err))
	}

	var file importFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return withCode(exitValidation, fmt.Errorf("parse input: %w", err))
	}
	if err := validateForest(file.Units); err != nil {
		return withCode(exitValidation, err)
	}
	if opts.dryRun {
		fmt.Printf("input is valid: %d root units\n", len(file.Units))
		return nil
	}

	pool, err := connectDB(ctx)
	if err != nil {
		return withCode(exitDB, err)
	}
	defer pool.Close()

	logger := configuration.Use().Logger()
	app := application.New(&application.ApplicationOptions{
		Pool:     pool,
		EventBus: eventbus.NewEventPublisher(logger),
		Logger:   logger,
	})
	if err := modules.Load(app); err != nil {
		return withCode(exitDB, err)
	}

	unitService := app.Service(services.UnitService{}).(*services.UnitService)
	assignmentService := app.Service(services.AssignmentService{}).(*services.AssignmentService)

	loadCtx := composables.WithPool(ctx, pool)
	loadCtx = composables.WithTenantID(loadCtx, opts.tenantID)
	loadCtx = composables.WithLogger(loadCtx, logrus.NewEntry(logger).WithField("tenant_id", opts.tenantID))

	// one transaction for the whole file: a failed row rolls back the load
	imported := 0
	err = composables.InTx(loadCtx, func(txCtx context.Context) error {
		for _, root := range file.Units {
			n, err := importSubtree(txCtx, unitService, assignmentService, root, nil)
			if err != nil {
				return err
			}
			imported += n
		}
		return nil
	})
	if err != nil {
		return withCode(exitDBWrite, err)
	}

	fmt.Printf("imported %d units\n", imported)
	return nil
}

func validateForest(nodes []unitTreeNode) error {
	var walk func(node unitTreeNode, path string) error
	walk = func(node unitTreeNode, path string) error {
		name := strings.TrimSpace(node.Name)
		if name == "" {
			return fmt.Errorf("unit at %q has no name", path)
		}
		if !unit.Type(node.Type).IsValid() {
			return fmt.Errorf("unit %q has unknown type %q", path+name, node.Type)
		}
		if len(node.Assignments) > 0 && unit.Type(node.Type) != unit.TypeIndividual {
			return fmt.Errorf("unit %q is organizational and cannot carry assignments", path+name)
		}
		for _, child := range node.Children {
			if err := walk(child, path+name+"/"); err != nil {
				return err
			}
		}
		return nil
	}
	for _, node := range nodes {
		if err := walk(node, "/"); err != nil {
			return err
		}
	}
	return nil
}

// importSubtree creates the node, its assignments and tags, then recurses
// into children. Events are squelched: bulk loads must not fan out one
// event per imported row.
func importSubtree(
	ctx context.Context,
	unitService *services.UnitService,
	assignmentService *services.AssignmentService,
	node unitTreeNode,
	parentUnitID *uuid.UUID,
) (int, error) {
	squelch := services.Options{SquelchEvents: true}

	created, err := unitService.Create(ctx, unit.CreateDTO{
		Name:            node.Name,
		Type:            unit.Type(node.Type),
		ParentUnitID:    parentUnitID,
		Description:     node.Description,
		ExtraAttributes: node.ExtraAttributes,
	}, squelch)
	if err != nil {
		return 0, fmt.Errorf("create unit %q: %w", node.Name, err)
	}

	for key, value := range node.Tags {
		if err := unitService.SetUnitTag(ctx, created.UnitID(), key, value); err != nil {
			return 0, fmt.Errorf("tag unit %q: %w", node.Name, err)
		}
	}

	for _, a := range node.Assignments {
		_, err := assignmentService.AssignUserToUnit(ctx, created.UnitID(), assignment.CreateDTO{
			UserID:    a.UserID,
			StartDate: a.StartDate,
			EndDate:   a.EndDate,
		}, squelch)
		if err != nil {
			return 0, fmt.Errorf("assign user %s to unit %q: %w", a.UserID, node.Name, err)
		}
	}

	count := 1
	parentID := created.UnitID()
	for _, child := range node.Children {
		n, err := importSubtree(ctx, unitService, assignmentService, child, &parentID)
		if err != nil {
			return 0, err
		}
		count += n
	}
	return count, nil
}
