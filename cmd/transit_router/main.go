// Command transit_router compiles a bus network into a store file (build)
// and answers queries against it (serve).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"transit_router/pkg/api"
	"transit_router/pkg/catalogue"
	"transit_router/pkg/config"
	"transit_router/pkg/graph"
	osmimport "transit_router/pkg/osm"
	"transit_router/pkg/request"
	"transit_router/pkg/store"
	"transit_router/pkg/transit"
)

const usage = `Usage:
  transit_router build [-config file] [-osm file.osm.pbf] [-store file] [-precompute=true] < build.json
  transit_router serve [-config file] [-store file] [-http addr] < serve.json > answers.json`

var (
	errUsage   = errors.New("wrong arguments")
	errNoStore = errors.New("no store file: set serialization_settings.file, -store or TRANSIT_STORE")
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "build":
		err = runBuild(os.Args[2:], os.Stdin)
	case "serve":
		err = runServe(os.Args[2:], os.Stdin, os.Stdout)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}
	if errors.Is(err, errUsage) {
		fmt.Fprintf(os.Stderr, "%s: %v\n%s\n", os.Args[1], err, usage)
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("%s: %v", os.Args[1], err)
	}
}

// loadConfig parses the common flags and merges them over the config file.
// extra registers mode-specific flags; apply copies explicitly set ones into cfg.
func loadConfig(mode string, args []string, extra func(fs *flag.FlagSet), apply func(name string, cfg *config.Config)) (config.Config, error) {
	fs := flag.NewFlagSet(mode, flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to a YAML config file")
	storePath := fs.String("store", "", "Store file path (overrides serialization_settings.file)")
	extra(fs)
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		return config.Config{}, fmt.Errorf("%w: %w", errUsage, err)
	}
	if fs.NArg() != 0 {
		return config.Config{}, fmt.Errorf("%w: unexpected argument %q", errUsage, fs.Arg(0))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return config.Config{}, err
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "store" {
			cfg.Store.Path = *storePath
		}
		apply(f.Name, &cfg)
	})
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}
	config.InitLogging(cfg.Log)
	return cfg, nil
}

func runBuild(args []string, in io.Reader) error {
	var osmFile string
	var precompute bool
	cfg, err := loadConfig("build", args,
		func(fs *flag.FlagSet) {
			fs.StringVar(&osmFile, "osm", "", "Import bus routes from an .osm.pbf file")
			fs.BoolVar(&precompute, "precompute", true, "Compute shortest paths from every vertex before writing")
		},
		func(name string, cfg *config.Config) {
			switch name {
			case "osm":
				cfg.Build.OSMFile = osmFile
			case "precompute":
				cfg.Build.Precompute = precompute
			}
		})
	if err != nil {
		return err
	}

	start := time.Now()

	doc, err := request.DecodeBuild(in)
	if err != nil {
		return err
	}
	settings := doc.Settings()
	if err := settings.Validate(); err != nil {
		return err
	}

	b := catalogue.NewBuilder()
	if err := doc.Populate(b); err != nil {
		return fmt.Errorf("populate catalogue: %w", err)
	}
	if cfg.Build.OSMFile != "" {
		if err := importOSM(cfg.Build, b); err != nil {
			return err
		}
	}
	cat := b.Build()
	if err := cat.CheckDistances(); err != nil {
		return err
	}
	log.Printf("Catalogue: %d stops, %d lines, %d distances", len(cat.Stops()), len(cat.Lines()), len(cat.Distances()))

	r, err := transit.New(cat, settings)
	if err != nil {
		return err
	}
	g := r.Network().Graph
	comp := graph.Components(g)
	log.Printf("Graph: %d vertices, %d edges, %d components (largest %d)",
		g.VertexCount(), g.EdgeCount(), comp.Count, comp.Largest)

	if cfg.Build.Precompute {
		log.Println("Computing shortest paths from every vertex...")
		r.PrecomputeAll()
	}

	path, err := storeFile(cfg, doc.Serialization)
	if err != nil {
		return err
	}
	log.Printf("Writing store to %s...", path)
	if err := store.Write(path, store.Snapshot{Router: r, Render: doc.RenderSettings}); err != nil {
		return err
	}

	info, _ := os.Stat(path)
	var size int64
	if info != nil {
		size = info.Size()
	}
	log.Printf("Done in %s. Output: %s (%.1f MB)", time.Since(start).Round(time.Millisecond), path, float64(size)/(1024*1024))
	return nil
}

func importOSM(bc config.BuildConfig, b *catalogue.Builder) error {
	var opts osmimport.ImportOptions
	if len(bc.BBox) == 4 {
		opts.BBox = osmimport.BBox{MinLat: bc.BBox[0], MaxLat: bc.BBox[1], MinLng: bc.BBox[2], MaxLng: bc.BBox[3]}
		log.Printf("Using bounding box filter: lat [%.4f, %.4f], lng [%.4f, %.4f]",
			opts.BBox.MinLat, opts.BBox.MaxLat, opts.BBox.MinLng, opts.BBox.MaxLng)
	}

	f, err := os.Open(bc.OSMFile)
	if err != nil {
		return fmt.Errorf("open OSM file: %w", err)
	}
	defer f.Close()

	log.Printf("Importing bus routes from %s...", bc.OSMFile)
	if _, err := osmimport.Import(context.Background(), f, b, opts); err != nil {
		return fmt.Errorf("import OSM: %w", err)
	}
	return nil
}

func runServe(args []string, in io.Reader, out io.Writer) error {
	var addr string
	cfg, err := loadConfig("serve", args,
		func(fs *flag.FlagSet) {
			fs.StringVar(&addr, "http", "", "Also serve the HTTP API on this address (e.g. :8080)")
		},
		func(name string, cfg *config.Config) {
			if name == "http" {
				cfg.Server.Addr = addr
			}
		})
	if err != nil {
		return err
	}

	doc, err := request.DecodeServe(in)
	if err != nil {
		return err
	}

	start := time.Now()
	path, err := storeFile(cfg, doc.Serialization)
	if err != nil {
		return err
	}
	snap, err := store.Read(path)
	if err != nil {
		return err
	}
	log.Printf("Loaded %s in %s", path, time.Since(start).Round(time.Millisecond))

	h := request.NewHandler(snap.Router, snap.Render)
	answers, err := h.Process(doc.StatRequests)
	if err != nil {
		return err
	}
	if err := request.Encode(out, answers); err != nil {
		return fmt.Errorf("write answers: %w", err)
	}

	if cfg.Server.Addr == "" {
		return nil
	}
	srv := api.NewServer(cfg.Server, api.NewHandlers(h, cfg.Server.NearestRadiusMeters))
	return api.ListenAndServe(srv)
}

// storeFile prefers the configured path over the document's.
func storeFile(cfg config.Config, s *request.SerializationSettings) (string, error) {
	if cfg.Store.Path != "" {
		return cfg.Store.Path, nil
	}
	if s.File == "" {
		return "", errNoStore
	}
	return s.File, nil
}
