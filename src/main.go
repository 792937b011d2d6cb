package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"

	"lrstool/src/catalog"
	"lrstool/src/derive"
	"lrstool/src/geo"
	"lrstool/src/metrics"
	"lrstool/src/settings"
	"lrstool/src/surface"
	"lrstool/src/track"
)

// printUsage prints helpful usage information
func printUsage() {
	log.Println("lrstool - Tools for the Lunar Radar Sounder archive")
	log.Println("\nUsage:")
	log.Println("  lrstool -cmd=<command> [options]")
	log.Println("\nCommands:")
	log.Println("  products   List indexed products")
	log.Println("  tracks     List indexed tracks of -product")
	log.Println("  latlim     Print the latitude limits of -product -track")
	log.Println("  lonlim     Print the longitude limits of -product -track")
	log.Println("  clocklim   Print the spacecraft clock limits of -product -track")
	log.Println("  derive     Derive -kind (anc|srf) for -product -track")
	log.Println("  batch      Derive -kind for every track of -product")
	log.Println("  box        List tracks crossing the -lat0/-lat1 -lon0/-lon1 box")
	log.Println("\nOptions:")
	flag.PrintDefaults()

	log.Println("\nExamples:")
	log.Println("  lrstool -cmd=derive -kind=anc -product=sar05 -track=20071221033918")
	log.Println("  lrstool -cmd=batch -kind=srf -method=grima2012 -product=sar05 -workers=8")
	log.Println("  lrstool -cmd=box -lat0=-80 -lat1=-70 -lon0=105 -lon1=160 -sampling=10000")
}

// validateArguments checks that a command got the identifiers it needs
func validateArguments(cmd, product, name string) error {
	switch cmd {
	case "tracks", "batch":
		if product == "" {
			return fmt.Errorf("command %s needs -product", cmd)
		}
	case "latlim", "lonlim", "clocklim", "derive":
		if product == "" || name == "" {
			return fmt.Errorf("command %s needs -product and -track", cmd)
		}
	}
	return nil
}

func main() {
	// Get the global settings instance
	args := settings.GetSettings()

	var (
		cmd      string
		product  string
		name     string
		kind     string
		method   string
		archive  bool
		del      bool
		lat0     float64
		lat1     float64
		lon0     float64
		lon1     float64
		sampling float64
	)

	// Define command line flags that map to the Arguments struct
	flag.StringVar(&args.ArchiveRoot, "root", args.ArchiveRoot, "Archive root directory")
	flag.StringVar(&args.OrigDirName, "origdir", args.OrigDirName, "Original products subdirectory under the root")
	flag.StringVar(&args.XtraDirName, "xtradir", args.XtraDirName, "Derived products subdirectory under the root")
	flag.StringVar(&args.AncKindName, "anckind", args.AncKindName, "Directory label for the ancillary derivation kind")
	flag.StringVar(&args.SrfKindName, "srfkind", args.SrfKindName, "Directory label for the surface derivation kind")
	flag.IntVar(&args.Workers, "workers", args.Workers, "Number of batch workers")
	flag.IntVar(&args.SurfaceWindow, "window", args.SurfaceWindow, "Surface search window half-width in range bins")
	flag.BoolVar(&args.Verbose, "verbose", false, "Enable verbose logging")
	flag.BoolVar(&args.Debug, "debug", false, "Enable debug mode")

	flag.StringVar(&cmd, "cmd", "", "Command to run")
	flag.StringVar(&product, "product", "", "Product full name or substring (e.g., sar05)")
	flag.StringVar(&name, "track", "", "Track identifier (e.g., 20071221033918)")
	flag.StringVar(&kind, "kind", derive.KindAncillary, "Derivation kind (anc or srf)")
	flag.StringVar(&method, "method", string(surface.Mouginot2010), "Surface detection method")
	flag.BoolVar(&archive, "archive", true, "Keep an existing derived file instead of recomputing")
	flag.BoolVar(&del, "delete", false, "Delete the original payload after a successful derivation")
	flag.Float64Var(&lat0, "lat0", 0, "Box first latitude")
	flag.Float64Var(&lat1, "lat1", 0, "Box last latitude")
	flag.Float64Var(&lon0, "lon0", 0, "Box first longitude")
	flag.Float64Var(&lon1, "lon1", 0, "Box last longitude")
	flag.Float64Var(&sampling, "sampling", 10e3, "Great-circle sampling distance in meters (0 disables densification)")

	// Parse the command line
	flag.Parse()

	if cmd == "" {
		printUsage()
		os.Exit(1)
	}
	if err := validateArguments(cmd, product, name); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		printUsage()
		os.Exit(1)
	}

	var logger *zap.Logger
	var err error
	if args.Debug {
		// Development configuration with more verbose output
		z := zap.NewDevelopmentConfig()
		z.OutputPaths = []string{"stdout"}
		logger, err = z.Build()
	} else {
		// Production configuration
		z := zap.NewProductionConfig()
		if args.Verbose {
			z.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		}
		logger, err = z.Build()
	}
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	zap.ReplaceGlobals(logger)

	cat, err := catalog.NewCatalog(args, sugar)
	if err != nil {
		sugar.Fatalf("Failed to index archive: %v", err)
	}

	collector := metrics.NewCollector("lrs", nil)
	collector.CatalogProducts.Set(float64(len(cat.Products())))
	collector.CatalogTracks.Set(float64(len(cat.Entries())))

	store := track.NewTrackStore(sugar)
	engine := derive.NewDeriveEngine(args, cat, store, collector, sugar)
	queries := geo.NewQueryEngine(cat, collector, sugar)

	switch cmd {
	case "products":
		for _, p := range cat.Products() {
			fmt.Println(p)
		}

	case "tracks":
		names, err := cat.Tracks(product)
		if err != nil {
			sugar.Fatalf("%v", err)
		}
		for _, n := range names {
			fmt.Println(n)
		}

	case "latlim", "lonlim", "clocklim":
		var lim [2]float64
		switch cmd {
		case "latlim":
			lim, err = cat.LatLim(product, name)
		case "lonlim":
			lim, err = cat.LonLim(product, name)
		case "clocklim":
			lim, err = cat.ClockLim(product, name)
		}
		if err != nil {
			sugar.Fatalf("%v", err)
		}
		fmt.Printf("[%g, %g]\n", lim[0], lim[1])

	case "derive":
		path, err := engine.Derive(derive.Request{
			Kind:    kind,
			Product: product,
			Name:    name,
			Archive: archive,
			Delete:  del,
			Method:  surface.Algorithm(method),
		})
		if err != nil {
			sugar.Fatalf("Derivation failed: %v", err)
		}
		fmt.Println(path)

	case "batch":
		report, err := engine.RunAll(derive.Request{
			Kind:    kind,
			Product: product,
			Archive: archive,
			Delete:  del,
			Method:  surface.Algorithm(method),
		}, args.Workers)
		if err != nil {
			sugar.Fatalf("Batch failed: %v", err)
		}
		fmt.Printf("run %s: %d succeeded, %d failed\n",
			report.RunID, len(report.Succeeded), len(report.Failed))
		for _, f := range report.Failed {
			fmt.Printf("  FAILED %s: %v\n", f.Name, f.Err)
		}

	case "box":
		ids := queries.TracksIntersectingBox(
			[2]float64{lat0, lat1}, [2]float64{lon0, lon1}, sampling)
		for _, id := range ids {
			fmt.Printf("%s %s\n", id.Product, id.Name)
		}

	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}
