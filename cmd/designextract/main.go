package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"syscall"

	humanize "github.com/dustin/go-humanize"
	jsoniter "github.com/json-iterator/go"
	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"

	"github.com/gamedata-tools/designextract/internal/container"
	"github.com/gamedata-tools/designextract/internal/decodetree"
	"github.com/gamedata-tools/designextract/internal/decoder"
	"github.com/gamedata-tools/designextract/internal/metadata"
	"github.com/gamedata-tools/designextract/internal/orchestrator"
	"github.com/gamedata-tools/designextract/internal/telemetry"
)

var configJSON = jsoniter.ConfigCompatibleWithStandardLibrary

var defaultWorkers = runtime.NumCPU()

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		interrupt := make(chan os.Signal, 1)
		signal.Notify(interrupt, syscall.SIGTERM, syscall.SIGINT)

		select {
		case <-interrupt:
			fmt.Println()
			klog.Info("received interrupt signal")
			cancel()
		case <-ctx.Done():
		}

		signal.Stop(interrupt)
	}()

	var designDir, dumpPath, outDir, excelMapPath, versionPrefix, indexOverridePath string
	var beta, skipTextmap, skipConfig, skipExcel, skipStory bool
	var workers int

	app := &cli.App{
		Name:        "designextract",
		Description: "Extract packed game design data into per-record JSON.",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:        "design-dir",
				Usage:       "directory holding the DesignV_* container blob(s)",
				Required:    true,
				Destination: &designDir,
			},
			&cli.StringFlag{
				Name:        "dump",
				Usage:       "path to the il2cpp-style class dump file describing the schema",
				Required:    true,
				Destination: &dumpPath,
			},
			&cli.StringFlag{
				Name:        "out",
				Usage:       "directory to write decoded JSON into",
				Required:    true,
				Destination: &outDir,
			},
			&cli.StringFlag{
				Name:        "excel-map",
				Usage:       "JSON file mapping excel base-class name to an explicit binary path, overriding the path cascade",
				Destination: &excelMapPath,
			},
			&cli.BoolFlag{
				Name:        "beta",
				Usage:       "decode DynamicFloat using the beta wire variant instead of the release streaming variant",
				Destination: &beta,
			},
			&cli.StringFlag{
				Name:        "version-prefix",
				Usage:       "pick the DesignV_<prefix> blob when design-dir holds more than one version",
				Destination: &versionPrefix,
			},
			&cli.StringFlag{
				Name:        "index-override",
				Usage:       "JSON file of { base_class: { \"0\": base, \"1\": sub1, ... } } overriding auto-derived SubclassIndex entries",
				Destination: &indexOverridePath,
			},
			&cli.BoolFlag{
				Name:        "skip-textmap",
				Usage:       "skip language-pack (textmap) iteration",
				Destination: &skipTextmap,
			},
			&cli.BoolFlag{
				Name:        "skip-config",
				Usage:       "skip manifest-driven config extraction",
				Destination: &skipConfig,
			},
			&cli.BoolFlag{
				Name:        "skip-excel",
				Usage:       "skip excel table extraction",
				Destination: &skipExcel,
			},
			&cli.BoolFlag{
				Name:        "skip-story",
				Usage:       "skip performance (story) graph extraction",
				Destination: &skipStory,
			},
			&cli.IntFlag{
				Name:        "workers",
				Usage:       "ordered-concurrently pool size for batch decoding",
				Value:       defaultWorkers,
				Destination: &workers,
			},
		}, newKlogFlagSet()...),
		Action: func(c *cli.Context) error {
			return run(ctx, runOptions{
				designDir:          designDir,
				dumpPath:           dumpPath,
				outDir:             outDir,
				excelMapPath:       excelMapPath,
				indexOverridePath:  indexOverridePath,
				versionPrefix:      versionPrefix,
				beta:               beta,
				skipTextmap:        skipTextmap,
				skipConfig:         skipConfig,
				skipExcel:          skipExcel,
				skipStory:          skipStory,
				workers:            workers,
			})
		},
	}

	sort.Sort(cli.FlagsByName(app.Flags))

	if err := app.RunContext(ctx, os.Args); err != nil {
		klog.Fatal(err)
	}
}

type runOptions struct {
	designDir         string
	dumpPath          string
	outDir            string
	excelMapPath      string
	indexOverridePath string
	versionPrefix     string
	beta              bool
	skipTextmap       bool
	skipConfig        bool
	skipExcel         bool
	skipStory         bool
	workers           int
}

// extractResult collects the failed-record lists across every batch the run
// attempted, assembled into err.json's three arrays (spec.md §7).
type extractResult struct {
	configErrors []string
	excelErrors  []string
	storyErrors  []string
}

func run(ctx context.Context, opts runOptions) error {
	shutdown, err := telemetry.Init(ctx, "designextract")
	if err != nil {
		return fmt.Errorf("telemetry init: %w", err)
	}
	defer shutdown()

	dumpFile, err := os.Open(opts.dumpPath)
	if err != nil {
		klog.Fatalf("open class dump: %v", err)
	}
	defer dumpFile.Close()

	overrides, err := loadIndexOverride(opts.indexOverridePath)
	if err != nil {
		klog.Fatalf("load index override: %v", err)
	}

	cat, err := metadata.ParseWithOverrides(dumpFile, overrides, nil)
	if err != nil {
		klog.Fatalf("parse class dump: %v", err)
	}

	designPath, err := resolveDesignPath(opts.designDir, opts.versionPrefix)
	if err != nil {
		klog.Fatalf("resolve design-dir: %v", err)
	}

	idx, err := container.Load(designPath)
	if err != nil {
		klog.Fatalf("load container: %v", err)
	}
	defer idx.Close()

	dec := decoder.New(cat, opts.beta)

	pathMapping, err := loadExcelMap(opts.excelMapPath)
	if err != nil {
		klog.Fatalf("load excel-map: %v", err)
	}

	if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
		klog.Fatalf("create out dir: %v", err)
	}

	orc := orchestrator.New(idx, cat, dec, orchestrator.Options{
		Workers: opts.workers,
	})

	if opts.skipTextmap {
		klog.Info("textmap skipped: out of scope")
	}

	var result extractResult

	if !opts.skipConfig {
		errMap := orc.LoadAllConfigs(jsonWriter(opts.outDir))
		names := make([]string, 0, len(errMap))
		for name := range errMap {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			result.configErrors = append(result.configErrors, errMap[name]...)
		}
	}

	if !opts.skipExcel {
		result.excelErrors = orc.LoadAllExcels(excelJSONWriter(opts.outDir), pathMapping)
	}

	if !opts.skipStory {
		result.storyErrors = orc.LoadAllStory(jsonWriter(opts.outDir))
	}

	total := len(result.configErrors) + len(result.excelErrors) + len(result.storyErrors)
	klog.Infof("extraction complete; %s record(s) failed", humanize.Comma(int64(total)))

	if err := writeErrJSON(opts.outDir, result); err != nil {
		klog.Warningf("failed to write err.json: %v", err)
	}

	return nil
}

// jsonWriter persists a decoded item at <outDir>/<itemPath without its
// extension>.json, creating parent directories as needed.
func jsonWriter(outDir string) orchestrator.Writer {
	return func(itemPath string, data *decodetree.Object) error {
		return writeJSONFile(filepath.Join(outDir, jsonName(itemPath)), data)
	}
}

func excelJSONWriter(outDir string) orchestrator.ExcelWriter {
	return func(fileName string, data *decodetree.Object) error {
		return writeJSONFile(filepath.Join(outDir, fileName), data)
	}
}

func jsonName(itemPath string) string {
	ext := filepath.Ext(itemPath)
	if ext != "" {
		itemPath = strings.TrimSuffix(itemPath, ext)
	}
	return itemPath + ".json"
}

func writeJSONFile(path string, data *decodetree.Object) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	raw, err := data.MarshalJSON()
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

func writeErrJSON(outDir string, result extractResult) error {
	obj := decodetree.NewObject()
	obj.Set("config", toAnySlice(result.configErrors))
	obj.Set("excel", toAnySlice(result.excelErrors))
	obj.Set("story", toAnySlice(result.storyErrors))
	raw, err := obj.MarshalJSON()
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outDir, "err.json"), raw, 0o644)
}

func toAnySlice(items []string) []any {
	out := make([]any, len(items))
	for i, s := range items {
		out[i] = s
	}
	return out
}

func loadIndexOverride(path string) (map[string]map[int]string, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var parsed map[string]map[string]string
	if err := configJSON.Unmarshal(raw, &parsed); err != nil {
		return nil, err
	}
	overrides := make(map[string]map[int]string, len(parsed))
	for base, bySubclass := range parsed {
		m := make(map[int]string, len(bySubclass))
		for k, v := range bySubclass {
			n, err := parseSubclassIndex(k)
			if err != nil {
				return nil, fmt.Errorf("index-override: %s: %w", base, err)
			}
			m[n] = v
		}
		overrides[base] = m
	}
	return overrides, nil
}

func loadExcelMap(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m map[string]string
	if err := configJSON.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func parseSubclassIndex(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}

// resolveDesignPath pins version-prefix's DesignV_<prefix> blob within dir,
// when given, instead of letting container.Load pick the first match.
func resolveDesignPath(dir, versionPrefix string) (string, error) {
	if versionPrefix == "" {
		return dir, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	want := "DesignV_" + versionPrefix
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), want) {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", fmt.Errorf("no DesignV_%s* blob found in %q", versionPrefix, dir)
}
