// Command defergen generates deferred calls for annotated methods.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"go/token"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/fang"
	"github.com/kr/pretty"
	"github.com/spf13/cobra"

	"github.com/tlipoca9/defergen/cmd/defergen/generator"
	"github.com/tlipoca9/defergen/cmd/defergen/manifest"
	"github.com/tlipoca9/defergen/cmd/defergen/model"
	"github.com/tlipoca9/defergen/genkit"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := fang.Execute(context.Background(), rootCmd()); err != nil {
		os.Exit(1)
	}
}

// cli holds the settings shared by every command.
type cli struct {
	// dir is the directory packages and defergen.toml are resolved from;
	// empty means the working directory.
	dir     string
	tags    []string
	noColor bool
	stdout  io.Writer
	stderr  io.Writer
}

func (c *cli) logger() *genkit.Logger {
	return genkit.NewLoggerWithWriter(c.stdout).SetNoColor(c.noColor)
}

func rootCmd() *cobra.Command {
	var dryRun bool
	var jsonOutput bool
	c := &cli{}

	cmd := &cobra.Command{
		Use:   "defergen [packages]",
		Short: "Generate deferred calls for Go methods",
		Long: `defergen generates, for every type with methods annotated with
// defergen:@callable, a container type whose methods capture a receiver and
arguments without calling anything. The captured call runs when Call is invoked.

  // defergen:@callable
  func (h *Hoge) Foo(bar int) (string, error)

generates HogeDefer, NewHogeDefer, (*HogeDefer).Foo and the callable type Foo.

Project defaults can be set in defergen.toml:
  output_suffix = "_defer.go"

  [callable]
  name = "{0}"
  accessible = "derived"
  serializable = true

  [container]
  name = "{0}Defer"`,
		Version: fmt.Sprintf("%s (%s) %s", version, commit, date),
		Example: `  defergen ./...                 # all packages
  defergen ./pkg/model           # specific package
  defergen --dry-run ./...       # validate without writing files
  defergen --dry-run --json ./... # JSON output for IDE integration`,
		Args: cobra.ArbitraryArgs,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			c.stdout = cmd.OutOrStdout()
			c.stderr = cmd.ErrOrStderr()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			if dryRun {
				return c.runDryRun(cmd.Context(), args, jsonOutput)
			}
			return c.run(cmd.Context(), args)
		},
	}
	cmd.SetVersionTemplate(fmt.Sprintf("defergen %s (%s) %s\n", version, commit, date))

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate and preview without writing files")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format (for IDE integration, requires --dry-run)")
	cmd.PersistentFlags().BoolVar(&c.noColor, "no-color", false, "Disable colored output")
	cmd.PersistentFlags().StringSliceVar(&c.tags, "tags", nil, "Build tags used when loading packages")

	cmd.AddCommand(manifestCmd(c))
	cmd.AddCommand(inspectCmd(c))
	cmd.AddCommand(configCmd(c))

	return cmd
}

// workDir returns c.dir, or the working directory when it is empty.
func (c *cli) workDir() (string, error) {
	if c.dir != "" {
		return c.dir, nil
	}
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	return dir, nil
}

// configDir returns the directory defergen.toml is searched from: the
// directory named by the first package pattern, or the working directory.
func (c *cli) configDir(args []string) (string, error) {
	dir, err := c.workDir()
	if err != nil {
		return "", err
	}
	if len(args) == 0 {
		return dir, nil
	}
	arg := strings.TrimSuffix(strings.TrimSuffix(args[0], "/..."), "...")
	if arg == "." || arg == "" {
		return dir, nil
	}
	if !filepath.IsAbs(arg) {
		arg = filepath.Join(dir, arg)
	}
	if info, err := os.Stat(arg); err == nil && info.IsDir() {
		return arg, nil
	}
	return dir, nil
}

func (c *cli) newGenerator(args []string, log *genkit.Logger) (*generator.Generator, error) {
	dir, err := c.configDir(args)
	if err != nil {
		return nil, err
	}
	cfg, path, err := generator.LoadConfig(dir)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", generator.ConfigFileName, err)
	}
	if path != "" {
		log.Load("Loaded %v", path)
	}
	return generator.New(generator.WithConfig(cfg)), nil
}

func (c *cli) loadPackages(args []string) (*genkit.Generator, error) {
	gen := genkit.New(genkit.Options{Dir: c.dir, Tags: c.tags, IgnoreGeneratedFiles: true})
	if err := gen.Load(args...); err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	return gen, nil
}

func (c *cli) run(ctx context.Context, args []string) error {
	log := c.logger()

	g, err := c.newGenerator(args, log)
	if err != nil {
		return err
	}
	gen, err := c.loadPackages(args)
	if err != nil {
		return err
	}
	log.Load("Loaded %v package(s)", len(gen.Packages))
	for _, pkg := range gen.Packages {
		log.Item("%v", pkg.GoImportPath())
	}

	if err := g.Run(ctx, gen, log); err != nil {
		for _, d := range generator.Diagnostics(err) {
			log.Error("%s[%s] %s%s", d.Tool, d.Code, d.Location(), d.Message)
		}
		return fmt.Errorf("%s: no files written", generator.ToolName)
	}
	return write(gen, log)
}

func write(gen *genkit.Generator, log *genkit.Logger) error {
	files, err := gen.DryRun()
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}
	if len(files) == 0 {
		log.Warn("No annotations found")
		return nil
	}
	if err := gen.Write(); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	log.Done("Generated %v file(s)", len(files))
	for _, path := range sortedKeys(files) {
		log.Item("%v", path)
	}
	return nil
}

func (c *cli) runDryRun(ctx context.Context, args []string, jsonOutput bool) error {
	// Use silent logger for JSON output to avoid polluting stdout
	log := c.logger()
	if jsonOutput {
		log = genkit.NewLoggerWithWriter(io.Discard)
	}
	result := &genkit.DryRunResult{
		Success: true,
		Files:   make(map[string]string),
	}

	g, err := c.newGenerator(args, log)
	if err != nil {
		return err
	}
	gen, err := c.loadPackages(args)
	if err != nil {
		return err
	}
	result.Stats.PackagesLoaded = len(gen.Packages)

	for _, d := range g.Validate(ctx, gen, log) {
		result.AddDiagnostic(d)
	}

	// If no validation errors, try to generate (dry-run)
	if result.Success {
		if err := g.Run(ctx, gen, log); err != nil {
			result.Success = false
			for _, d := range generator.Diagnostics(err) {
				result.AddDiagnostic(d)
			}
		}
	}

	if result.Success {
		addPreviews(result, gen)
	}

	if jsonOutput {
		enc := json.NewEncoder(c.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	return printDryRunResult(result, log)
}

// addPreviews adds the first 500 bytes of every generated file to result.
func addPreviews(result *genkit.DryRunResult, gen *genkit.Generator) {
	files, err := gen.DryRun()
	if err != nil {
		result.AddDiagnostic(genkit.NewDiagnostic(genkit.DiagnosticError, generator.ToolName, "",
			fmt.Sprintf("generate: %v", err), token.Position{}))
		return
	}
	result.Stats.FilesGenerated = len(files)
	for path, content := range files {
		preview := string(content)
		if len(preview) > 500 {
			preview = preview[:500] + "\n... (truncated)"
		}
		result.Files[path] = preview
	}
}

func printDryRunResult(result *genkit.DryRunResult, log *genkit.Logger) error {
	if result.Success {
		log.Done("Dry-run successful")
		log.Item("Packages: %v", result.Stats.PackagesLoaded)
		log.Item("Files to generate: %v", result.Stats.FilesGenerated)
		for _, path := range sortedKeys(result.Files) {
			log.Item("  %s", path)
		}
	} else {
		log.Warn("Dry-run found issues")
	}

	if result.Stats.ErrorCount > 0 {
		log.Warn("Errors: %v", result.Stats.ErrorCount)
	}
	for _, d := range result.Diagnostics {
		log.Warn("%s[%s] %s%s", d.Tool, d.Code, d.Location(), d.Message)
	}

	if !result.Success {
		return fmt.Errorf("dry-run failed with %d error(s)", result.Stats.ErrorCount)
	}
	return nil
}

func manifestCmd(c *cli) *cobra.Command {
	var dryRun bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "manifest <file.yaml>...",
		Short: "Generate from YAML manifests instead of Go sources",
		Long: `Generate deferred calls from manifests describing types and methods.

A manifest lists the declarations defergen would otherwise read from the
annotated sources. It is useful when the sources cannot be type-checked.

  package: shop
  import_path: example.com/shop
  imports:
    - path: context
  types:
    - name: Cart
      methods:
        - name: Checkout
          pointer: true
          params:
            - {name: ctx, type: context.Context}
          results:
            - {type: string}
            - {type: error}

Output is written next to the manifest unless dir is set.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runManifest(cmd.Context(), args, dryRun, jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the generated files instead of writing them")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the dry-run result as JSON (requires --dry-run)")
	return cmd
}

func (c *cli) runManifest(ctx context.Context, files []string, dryRun, jsonOutput bool) error {
	log := c.logger()
	switch {
	case dryRun && jsonOutput:
		log = genkit.NewLoggerWithWriter(io.Discard)
	case dryRun:
		log = genkit.NewLoggerWithWriter(c.stderr).SetNoColor(c.noColor)
	}

	dir := filepath.Dir(files[0])
	cfg, path, err := generator.LoadConfig(dir)
	if err != nil {
		return fmt.Errorf("load %s: %w", generator.ConfigFileName, err)
	}
	if path != "" {
		log.Load("Loaded %v", path)
	}
	g := generator.New(generator.WithConfig(cfg))
	gen := genkit.New()
	result := &genkit.DryRunResult{
		Success: true,
		Files:   make(map[string]string),
	}

	for _, file := range files {
		pd, err := manifest.Load(file, cfg.Defaults())
		if err == nil {
			log.Load("Loaded %v", file)
			result.Stats.PackagesLoaded++
			err = g.ProcessPackage(ctx, gen, pd, log)
		}
		for _, d := range generator.Diagnostics(err) {
			result.AddDiagnostic(d)
		}
	}

	if dryRun && jsonOutput {
		if result.Success {
			addPreviews(result, gen)
		}
		enc := json.NewEncoder(c.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	if !result.Success {
		for _, d := range result.Diagnostics {
			log.Error("%s[%s] %s%s", d.Tool, d.Code, d.Location(), d.Message)
		}
		return fmt.Errorf("%s: no files written", generator.ToolName)
	}
	if !dryRun {
		return write(gen, log)
	}
	out, err := gen.DryRun()
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}
	for _, path := range sortedKeys(out) {
		fmt.Fprintf(c.stdout, "// %s\n%s\n", path, out[path])
	}
	return nil
}

func inspectCmd(c *cli) *cobra.Command {
	var plan bool

	cmd := &cobra.Command{
		Use:   "inspect [packages]",
		Short: "Print what defergen reads from the packages",
		Long: `Print the descriptors defergen builds from annotated packages, or with
--plan the containers and callables it would generate. Errors are reported
but do not stop the output.`,
		Example: `  defergen inspect ./pkg/model
  defergen inspect --plan ./...`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runInspect(cmd.Context(), args, plan)
		},
	}
	cmd.Flags().BoolVar(&plan, "plan", false, "Print the planned output instead of the descriptors")
	return cmd
}

func (c *cli) runInspect(ctx context.Context, args []string, plan bool) error {
	w := c.stdout
	log := genkit.NewLoggerWithWriter(c.stderr).SetNoColor(c.noColor)
	g, err := c.newGenerator(args, log)
	if err != nil {
		return err
	}
	gen, err := c.loadPackages(args)
	if err != nil {
		return err
	}

	for _, pkg := range gen.Packages {
		pd, err := g.Describe(ctx, pkg)
		reportDiagnostics(log, err)
		if !plan {
			_, _ = pretty.Fprintf(w, "%# v\n", pd)
			continue
		}
		containers, err := g.Plan(ctx, pd)
		reportDiagnostics(log, err)
		for _, ct := range containers {
			_, _ = pretty.Fprintf(w, "%# v\n", summarize(ct))
		}
	}
	return nil
}

// containerSummary is the planned output without the descriptors it refers to.
type containerSummary struct {
	Container   string
	Constructor string
	Access      model.Access
	Delegate    string
	Callables   []callableSummary
}

type callableSummary struct {
	Type         string
	Factory      string
	Access       model.Access
	Serializable bool
	Fields       []string
}

func summarize(c *model.Container) containerSummary {
	s := containerSummary{
		Container:   c.Ident,
		Constructor: c.Constructor,
		Access:      c.Access,
		Delegate:    c.DelegateType(""),
	}
	for _, cb := range c.Callables {
		cs := callableSummary{
			Type:         cb.Ident,
			Factory:      cb.Factory,
			Access:       cb.Access,
			Serializable: cb.Serializable,
		}
		for _, f := range cb.Fields {
			cs.Fields = append(cs.Fields, f.Name+" "+f.FieldType())
		}
		s.Callables = append(s.Callables, cs)
	}
	return s
}

func reportDiagnostics(log *genkit.Logger, err error) {
	for _, d := range generator.Diagnostics(err) {
		log.Warn("%s[%s] %s%s", d.Tool, d.Code, d.Location(), d.Message)
	}
}

func configCmd(c *cli) *cobra.Command {
	var jsonOutput bool
	var settings bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Output the annotation configuration",
		Long: `Output the annotations defergen understands and their parameters.

With --settings the effective defergen.toml settings of the working
directory are printed instead.

OUTPUT FORMAT:
  TOML (default): Human-readable format for understanding the configuration
  JSON (--json):  Machine-readable format for IDE/tool integration`,
		Example: `  defergen config
  defergen config --json | jq '.annotations.callable'
  defergen config --settings`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runConfig(jsonOutput, settings)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format (for IDE/tool integration)")
	cmd.Flags().BoolVar(&settings, "settings", false, "Output the effective defergen.toml settings")
	return cmd
}

func (c *cli) runConfig(jsonOutput, settings bool) error {
	w := c.stdout
	dir, err := c.workDir()
	if err != nil {
		return err
	}
	cfg, _, err := generator.LoadConfig(dir)
	if err != nil {
		return fmt.Errorf("load %s: %w", generator.ConfigFileName, err)
	}

	var v any
	switch {
	case settings:
		v = cfg
	case jsonOutput:
		tc := generator.New(generator.WithConfig(cfg)).Config()
		v = tc.ToJSON()
	default:
		v = map[string]genkit.ToolConfig{generator.ToolName: generator.New(generator.WithConfig(cfg)).Config()}
	}

	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return toml.NewEncoder(w).Encode(v)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
