package generator

import (
	"context"
	"errors"
	"fmt"
	"go/token"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/tlipoca9/defergen/cmd/defergen/loader"
	"github.com/tlipoca9/defergen/cmd/defergen/model"
	"github.com/tlipoca9/defergen/genkit"
)

const tracerName = "github.com/tlipoca9/defergen/cmd/defergen/generator"

// Generator generates containers and deferred calls for annotated methods.
type Generator struct {
	cfg    Config
	tracer trace.Tracer
}

// Option configures a Generator.
type Option func(*Generator)

// WithConfig replaces the built-in configuration.
func WithConfig(cfg Config) Option {
	return func(g *Generator) { g.cfg = cfg }
}

// WithTracerProvider sets the provider of the load, plan and emit spans.
// The global provider is used by default.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(g *Generator) { g.tracer = tp.Tracer(tracerName) }
}

// New creates a new Generator.
func New(opts ...Option) *Generator {
	g := &Generator{cfg: DefaultConfig()}
	for _, opt := range opts {
		opt(g)
	}
	if g.tracer == nil {
		g.tracer = otel.Tracer(tracerName)
	}
	return g
}

// Name returns the tool name.
func (g *Generator) Name() string {
	return ToolName
}

// Config returns the annotation schema.
func (g *Generator) Config() genkit.ToolConfig {
	return g.config()
}

// Settings returns the configuration the generator runs with.
func (g *Generator) Settings() Config {
	return g.cfg
}

// Describe builds the descriptors of pkg. The descriptor is usable even if
// an error is returned; it then lacks the invalid declarations.
func (g *Generator) Describe(ctx context.Context, pkg *genkit.Package) (*model.PackageDescriptor, error) {
	_, span := g.tracer.Start(ctx, "defergen.load", trace.WithAttributes(
		attribute.String("defergen.package", pkg.PkgPath),
	))
	defer span.End()

	pd, err := loader.Package(pkg, loader.Options{Tool: ToolName, Defaults: g.cfg.Defaults()})
	span.SetAttributes(attribute.Int("defergen.types", len(pd.Types)))
	recordError(span, err)
	return pd, err
}

// Plan plans the containers of pd.
func (g *Generator) Plan(ctx context.Context, pd *model.PackageDescriptor) ([]*model.Container, error) {
	ctx, span := g.tracer.Start(ctx, "defergen.plan", trace.WithAttributes(
		attribute.String("defergen.package", pd.ImportPath),
		attribute.Int("defergen.types", len(pd.Types)),
	))
	defer span.End()

	containers, err := model.PlanPackage(ctx, pd, model.PlanOptions{Parallelism: g.cfg.Parallelism})
	span.SetAttributes(attribute.Int("defergen.containers", len(containers)))
	recordError(span, err)
	return containers, err
}

// Validate implements genkit.ValidatableTool.
// It checks for errors without generating files, returning diagnostics for IDE integration.
func (g *Generator) Validate(ctx context.Context, gen *genkit.Generator, _ *genkit.Logger) []genkit.Diagnostic {
	c := genkit.NewDiagnosticCollector(ToolName)
	for _, pkg := range gen.Packages {
		pd, err := g.Describe(ctx, pkg)
		collect(c, err)
		_, err = g.Plan(ctx, pd)
		collect(c, err)
		warnEmptyContainers(c, pkg)
	}
	return c.Collect()
}

// warnEmptyContainers reports @container types that generate nothing.
func warnEmptyContainers(c *genkit.DiagnosticCollector, pkg *genkit.Package) {
	for _, typ := range pkg.Types {
		if !genkit.HasAnnotation(typ.Doc, ToolName, loader.ContainerAnnotation) {
			continue
		}
		marked := false
		for _, fn := range typ.Methods {
			if genkit.HasAnnotation(fn.Doc, ToolName, loader.MarkerAnnotation) {
				marked = true
				break
			}
		}
		if !marked {
			c.Warningf(WarnCodeEmptyContainer, typ.Pos, "%s: @%s has no @%s methods, nothing is generated",
				typ.Name, loader.ContainerAnnotation, loader.MarkerAnnotation)
		}
	}
}

// Run processes all packages and generates deferred calls.
// Any error fails the whole run; files are only written by the caller
// when Run succeeds.
func (g *Generator) Run(ctx context.Context, gen *genkit.Generator, log *genkit.Logger) error {
	var errs []error
	for _, pkg := range gen.Packages {
		pd, err := g.Describe(ctx, pkg)
		if err != nil {
			errs = append(errs, fmt.Errorf("load %s: %w", pkg.Name, err))
		}
		if err := g.ProcessPackage(ctx, gen, pd, log); err != nil {
			errs = append(errs, err)
		}
	}
	return utilerrors.NewAggregate(errs)
}

// ProcessPackage plans pd and adds its output file to gen.
func (g *Generator) ProcessPackage(ctx context.Context, gen *genkit.Generator, pd *model.PackageDescriptor, log *genkit.Logger) error {
	if len(pd.Types) == 0 {
		return nil
	}
	log.Find("Found %v type(s) with deferred calls in %v", len(pd.Types), genkit.GoImportPath(pd.ImportPath))

	containers, err := g.Plan(ctx, pd)
	for _, c := range containers {
		log.Item("%v: %v callable(s)", c.Ident, len(c.Callables))
	}
	if err != nil {
		return fmt.Errorf("plan %s: %w", pd.Name, err)
	}
	if len(containers) == 0 {
		return nil
	}
	g.Emit(ctx, gen, pd, containers)
	return nil
}

// OutputPath returns the file generated for pd.
func (g *Generator) OutputPath(pd *model.PackageDescriptor) string {
	return genkit.OutputPath(pd.Dir, pd.Name+g.cfg.OutputSuffix)
}

// Diagnostics converts generation errors to diagnostics.
func Diagnostics(err error) []genkit.Diagnostic {
	c := genkit.NewDiagnosticCollector(ToolName)
	collect(c, err)
	return c.Collect()
}

func collect(c *genkit.DiagnosticCollector, err error) {
	for _, e := range flatten(err) {
		var merr *model.Error
		if !errors.As(e, &merr) {
			c.Error("", e.Error(), token.Position{})
			continue
		}
		if merr.Element != "" {
			c.Errorf(merr.Code, merr.Pos, "%s: %s", merr.Element, merr.Msg)
		} else {
			c.Error(merr.Code, merr.Msg, merr.Pos)
		}
	}
}

func flatten(err error) []error {
	if err == nil {
		return nil
	}
	var agg utilerrors.Aggregate
	if errors.As(err, &agg) {
		return utilerrors.Flatten(agg).Errors()
	}
	return []error{err}
}

func recordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
