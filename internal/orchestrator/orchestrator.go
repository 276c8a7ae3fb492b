// Package orchestrator iterates a design-data manifest and excel tables,
// routes each logical record through the catalog and decoder, and collects
// per-batch errors. Persisting decoded trees to disk is the caller's
// responsibility (spec.md places on-disk JSON layout out of scope); this
// package hands each decoded item to a caller-supplied Writer instead of
// touching the filesystem itself, beyond reading container chunks and the
// optional Options.RawDumpDir copies of undecoded config bytes.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	jsoniter "github.com/json-iterator/go"
	"github.com/schollz/progressbar/v3"
	concurrently "github.com/tejzpr/ordered-concurrently/v3"
	"k8s.io/klog/v2"

	"github.com/gamedata-tools/designextract/internal/container"
	"github.com/gamedata-tools/designextract/internal/decodetree"
	"github.com/gamedata-tools/designextract/internal/decoder"
	"github.com/gamedata-tools/designextract/internal/metadata"
	"github.com/gamedata-tools/designextract/internal/telemetry"
)

var manifestJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// manifestName is the container-relative logical name of the config
// manifest, resolved through the same stable-hash addressing as every
// other logical record.
const manifestName = "BakedConfig/ConfigManifest.json"

// Writer persists one decoded item at its logical item path. Left to the
// caller: spec.md treats on-disk layout as an external collaborator.
type Writer func(itemPath string, data *decodetree.Object) error

// ExcelWriter persists one decoded excel table under a file name derived
// from the table's base class (or an explicit path mapping entry).
type ExcelWriter func(fileName string, data *decodetree.Object) error

// Options configures an Orchestrator.
type Options struct {
	// Workers bounds the ordered-concurrently pool size for LoadConfig (and
	// so LoadAllConfigs); excel and story tables are decoded sequentially.
	// Zero defaults to runtime.NumCPU().
	Workers int
	// RawDumpDir, if non-empty, receives a copy of each binary config's
	// undecoded bytes before it is decoded — a debugging aid carried over
	// from the source's load_binary_config "dump" parameter, off by default.
	RawDumpDir string
	// ExtraConfigMap extends the built-in CONFIG_MAP alias table with glob
	// patterns, consulted after exact matches fail.
	ExtraConfigMap ExtraConfigMap
}

// Orchestrator ties together a container index, a schema catalog, and a
// decoder to resolve and decode every record a manifest or excel table
// names.
type Orchestrator struct {
	idx      *container.Index
	cat      *metadata.Catalog
	dec      *decoder.Decoder
	opts     Options
	manifest map[string][]string
}

// New builds an Orchestrator and loads the config manifest, if present.
// A missing or unreadable manifest is not fatal: load_config-style methods
// simply report an empty config set, matching the source's bare except.
func New(idx *container.Index, cat *metadata.Catalog, dec *decoder.Decoder, opts Options) *Orchestrator {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	o := &Orchestrator{idx: idx, cat: cat, dec: dec, opts: opts, manifest: map[string][]string{}}
	entry, ok := idx.EntryByName(manifestName)
	if !ok {
		return o
	}
	raw, err := idx.ReadChunk(entry)
	if err != nil {
		return o
	}
	var m map[string][]string
	if err := manifestJSON.Unmarshal(raw, &m); err != nil {
		return o
	}
	o.manifest = m
	return o
}

// ConfigNames returns the manifest's config group names, sorted for
// deterministic iteration.
func (o *Orchestrator) ConfigNames() []string {
	names := make([]string, 0, len(o.manifest))
	for n := range o.manifest {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// LoadBinaryConfig resolves item's on-disk bytes path within BakedConfig
// and decodes it as className.
func (o *Orchestrator) LoadBinaryConfig(item, className string) (*decodetree.Object, error) {
	name := bakedConfigPath(item)
	entry, ok := o.idx.EntryByName(name)
	if !ok {
		return nil, fmt.Errorf("orchestrator: no entry for %s", name)
	}
	c, err := o.idx.ReadChunkCursor(entry)
	if err != nil {
		return nil, err
	}
	if o.opts.RawDumpDir != "" {
		if raw, err := o.idx.ReadChunk(entry); err == nil {
			dumpPath := filepath.Join(o.opts.RawDumpDir, filepath.Base(name))
			_ = os.MkdirAll(o.opts.RawDumpDir, 0o755)
			_ = os.WriteFile(dumpPath, raw, 0o644)
		}
	}
	return o.dec.DecodeClass(c, className, true, true)
}

// bakedConfigPath turns a manifest item path (e.g. "Foo/Bar.json") into its
// BakedConfig-relative binary path ("BakedConfig/Foo/Bar.bytes").
func bakedConfigPath(item string) string {
	idx := -1
	for i := len(item) - 1; i >= 0; i-- {
		if item[i] == '.' {
			idx = i
			break
		}
	}
	base := item
	if idx >= 0 {
		base = item[:idx]
	}
	return "BakedConfig/" + base + ".bytes"
}

// configWorkItem is one manifest entry's decode task, run concurrently via
// ordered-concurrently while preserving output ordering for deterministic
// error-list reporting.
type configWorkItem struct {
	o         *Orchestrator
	item      string
	className string
}

type configWorkResult struct {
	item string
	data *decodetree.Object
	err  error
}

func (w *configWorkItem) Run(ctx context.Context) interface{} {
	_, span := telemetry.StartItem(ctx, w.item, w.className)
	defer span.End()
	data, err := w.o.LoadBinaryConfig(w.item, w.className)
	telemetry.RecordError(span, err)
	return configWorkResult{item: w.item, data: data, err: err}
}

// LoadConfig decodes every item in the named config group, calling write
// for each success, and returns the item paths that failed to decode.
func (o *Orchestrator) LoadConfig(configName string, write Writer) []string {
	items, ok := o.manifest[configName]
	if !ok {
		return nil
	}
	ctx, batchSpan := telemetry.StartBatch(context.Background(), configName, len(items))
	defer batchSpan.End()

	numWorkers := o.opts.Workers
	if numWorkers > len(items) {
		numWorkers = len(items)
	}
	if numWorkers < 1 {
		numWorkers = 1
	}
	workerInput := make(chan concurrently.WorkFunction, numWorkers)
	output := concurrently.Process(ctx, workerInput,
		&concurrently.Options{PoolSize: numWorkers, OutChannelBuffer: numWorkers})

	bar := progressbar.Default(int64(len(items)), configName)

	var errList []string
	var wg sync.WaitGroup
	var succeeded atomic.Int64
	wg.Add(1)
	go func() {
		defer wg.Done()
		for res := range output {
			r := res.Value.(configWorkResult)
			if r.err != nil {
				klog.Warningf("orchestrator: failed to parse %s: %v", r.item, r.err)
				errList = append(errList, r.item)
				_ = bar.Add(1)
				continue
			}
			if err := write(r.item, r.data); err != nil {
				klog.Warningf("orchestrator: failed to persist %s: %v", r.item, err)
				errList = append(errList, r.item)
				_ = bar.Add(1)
				continue
			}
			succeeded.Add(1)
			_ = bar.Add(1)
		}
	}()

	for _, item := range items {
		klog.Infof("Parsing %s", item)
		className, fallback := resolveClassName(configName, item, o.opts.ExtraConfigMap)
		if fallback {
			klog.Warningf("orchestrator: can't find class name for config %s, falling back to item name", configName)
		}
		workerInput <- &configWorkItem{o: o, item: item, className: className}
	}
	close(workerInput)
	wg.Wait()

	klog.Infof("Parsing complete. Extracted %d of %d files.", succeeded.Load(), len(items))
	return errList
}

// LoadAllConfigs decodes every config group named in the manifest, keyed by
// group name, returning the per-group failed-item lists.
func (o *Orchestrator) LoadAllConfigs(write Writer) map[string][]string {
	errMap := map[string][]string{}
	for _, name := range o.ConfigNames() {
		if errs := o.LoadConfig(name, write); len(errs) > 0 {
			errMap[name] = errs
		}
	}
	return errMap
}

// excelFileName strips a ".bytes" logical path down to its basename with a
// ".json" extension, matching os.path.basename(s_path)[:-6] + '.json'.
func excelFileName(path string) string {
	base := filepath.Base(path)
	const suffix = ".bytes"
	if len(base) >= len(suffix) && base[len(base)-len(suffix):] == suffix {
		base = base[:len(base)-len(suffix)]
	}
	return base + ".json"
}

// excelReaderName resolves the first of excelCandidates (or an explicit
// path) that the container index has an entry for.
func (o *Orchestrator) excelReaderName(baseClass, explicitPath string) (string, bool) {
	if explicitPath != "" {
		if _, ok := o.idx.EntryByName(explicitPath); ok {
			return explicitPath, true
		}
		return "", false
	}
	for _, candidate := range excelCandidates(baseClass) {
		if _, ok := o.idx.EntryByName(candidate); ok {
			return candidate, true
		}
	}
	return "", false
}

// LoadBinaryExcel decodes an excel table: a leading array-length prefix
// followed by that many <BaseClass>Row records (decoded without
// polymorphism or a type tag), keyed by the decoded row's declared index
// field, stringified. Each row is rebuilt with the index field seeded
// first and the rest of the decode copied in after, so the index field is
// always the row's first key, regardless of where it falls in the class's
// effective (ancestor-first) field order.
func (o *Orchestrator) LoadBinaryExcel(baseClass, explicitPath string) (*decodetree.Object, error) {
	name, ok := o.excelReaderName(baseClass, explicitPath)
	if !ok {
		return nil, nil
	}
	entry, ok := o.idx.EntryByName(name)
	if !ok {
		return nil, fmt.Errorf("orchestrator: no entry for %s", name)
	}
	c, err := o.idx.ReadChunkCursor(entry)
	if err != nil {
		return nil, err
	}
	n, err := c.ReadArrayLen()
	if err != nil {
		return nil, fmt.Errorf("orchestrator: excel array length for %s: %w", baseClass, err)
	}
	klog.Infof("%s excel item count: %d", baseClass, n)

	rowClass := baseClass + "Row"
	cd, ok := o.cat.Class(rowClass)
	if !ok || len(cd.Fields) == 0 {
		return nil, fmt.Errorf("orchestrator: %s has no declared index field", rowClass)
	}
	indexField := cd.Fields[0].Name

	result := decodetree.NewObject()
	for i := 0; i < n; i++ {
		row, err := o.dec.DecodeClass(c, rowClass, false, false)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: excel row %d of %s: %w", i, baseClass, err)
		}
		// Seed indexField first, then copy the rest of the decoded row over
		// it, mirroring config_loader.py's `data = {index_field: i};
		// data.update(loaded_row)` — indexField always ends up first in key
		// order, regardless of where DecodeClass's EffectiveFields walk
		// happened to place it (a Row subclass's own first field can land
		// after inherited base-class fields).
		seeded := decodetree.NewObject()
		seeded.Set(indexField, i)
		for j := 0; j < row.Len(); j++ {
			k, _ := row.KeyAt(j)
			v, _ := row.ValueAt(j)
			seeded.Set(k, v)
		}
		v, _ := seeded.Get(indexField)
		result.Set(fmt.Sprint(v), seeded)
	}
	return result, nil
}

// LoadAllExcels decodes every excel-row class the catalog identifies (or,
// when pathMapping is non-nil, exactly the given class->path pairs),
// calling write for each table and returning the class names that failed.
func (o *Orchestrator) LoadAllExcels(write ExcelWriter, pathMapping map[string]string) []string {
	var errList []string
	if pathMapping != nil {
		names := make([]string, 0, len(pathMapping))
		for n := range pathMapping {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, className := range names {
			path := pathMapping[className]
			data, err := o.LoadBinaryExcel(className, path)
			if err != nil || data == nil {
				errList = append(errList, className)
				continue
			}
			if err := write(excelFileName(path), data); err != nil {
				errList = append(errList, className)
			}
		}
		return errList
	}
	for _, excelName := range o.cat.ExcelRowClasses() {
		data, err := o.LoadBinaryExcel(excelName, "")
		if err != nil {
			errList = append(errList, excelName)
			continue
		}
		if data == nil {
			errList = append(errList, excelName)
			continue
		}
		if err := write(excelName+".json", data); err != nil {
			errList = append(errList, excelName)
		}
	}
	return errList
}

// LoadAllStory decodes every performance (story) graph named by the
// PerformanceC excel table, keyed by its PerformancePath field.
func (o *Orchestrator) LoadAllStory(write Writer) []string {
	storyConfig, err := o.LoadBinaryExcel("PerformanceC", "BakedConfig/ExcelOutput/PerformanceC.bytes")
	if err != nil || storyConfig == nil {
		return nil
	}
	var errList []string
	for i := 0; i < storyConfig.Len(); i++ {
		row, ok := storyConfig.ValueAt(i)
		if !ok {
			continue
		}
		obj, ok := row.(*decodetree.Object)
		if !ok {
			continue
		}
		pathVal, ok := obj.Get("PerformancePath")
		if !ok {
			continue
		}
		path, _ := pathVal.(string)
		if path == "" {
			continue
		}
		// load_binary_config itself strips path's extension and appends
		// ".bytes" under "BakedConfig/" — the same rewrite LoadConfig's
		// manifest items go through, so the raw row path is passed as-is.
		data, err := o.LoadBinaryConfig(path, "LevelGraphConfig")
		if err != nil {
			errList = append(errList, path)
			continue
		}
		if err := write(path, data); err != nil {
			errList = append(errList, path)
		}
	}
	return errList
}
