package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math"
	"os"

	"geomodel3d/internal/models"
	"geomodel3d/pkg/config"
	"geomodel3d/pkg/pipeline"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "", "Path to YAML configuration file")
	resolution := flag.Float64("resolution", 0, "Grid resolution in world units (overrides config)")
	variant := flag.String("variant", "", "Kriging variant: ordinary, universal or simple (overrides config)")
	model := flag.String("model", "", "Variogram model: gaussian, exponential, spherical, matern or linear (overrides config)")
	uncertainty := flag.Bool("uncertainty", false, "Run leave-one-out cross-validation")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	opts := map[string]any{}
	if *resolution > 0 {
		opts["grid_resolution"] = *resolution
	}
	if *variant != "" {
		opts["kriging_variant"] = *variant
	}
	if *model != "" {
		opts["variogram_model"] = *model
	}
	if *uncertainty {
		opts["run_uncertainty_analysis"] = true
	}
	cfg.ApplyOptions(opts)

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	fmt.Println("================================")
	fmt.Println("3D GEOLOGICAL SURFACE RECONSTRUCTION BY KRIGING INTERPOLATION")
	fmt.Println("================================")

	samples, layers := demoDataset()
	fmt.Printf("Modeling %d borehole samples with %s kriging and a %s variogram...\n",
		len(samples), cfg.Interpolation.KrigingVariant, cfg.Interpolation.VariogramModel)

	p := pipeline.New(cfg, logger)
	result, err := p.Run(context.Background(), samples, layers)
	if err != nil {
		for _, d := range result.Diagnostics {
			log.Printf("[%s/%s] %s: %s", d.Kind, d.Severity, d.Message, d.Technical)
		}
		log.Fatalf("Reconstruction failed: %v", err)
	}

	fmt.Printf("\nReconstruction completed in %.3f seconds\n", result.Stats.Duration.Seconds())
	fmt.Printf("Method: %s over %d samples\n", result.Stats.Method, result.Stats.SampleCount)
	fmt.Printf("Grid: %d x %d nodes at %.2f spacing\n",
		result.Field.Grid.NX, result.Field.Grid.NY, result.Field.Grid.Spacing)

	fmt.Printf("\nVariogram model (%s):\n", result.FitQuality)
	fmt.Printf("=======================================\n")
	fmt.Printf("Kind:   %s\n", result.Model.Kind)
	fmt.Printf("Range:  %.3f\n", result.Model.Range)
	fmt.Printf("Sill:   %.3f\n", result.Model.Sill)
	fmt.Printf("Nugget: %.3f\n", result.Model.Nugget)

	minVar, maxVar := math.Inf(1), math.Inf(-1)
	for _, v := range result.Field.Variance {
		minVar = math.Min(minVar, v)
		maxVar = math.Max(maxVar, v)
	}
	fmt.Printf("\nEstimation variance range: [%.4f, %.4f]\n", minVar, maxVar)

	if result.Uncertainty != nil {
		q := result.Uncertainty.Quality
		fmt.Printf("\nCross-validation (leave-one-out):\n")
		fmt.Printf("=======================================\n")
		fmt.Printf("Mean error: %+.4f\n", q.MeanError)
		fmt.Printf("RMSE:       %.4f\n", q.RMSE)
		fmt.Printf("R²:         %.4f\n", q.R2)
	}

	fmt.Printf("\nScene export:\n")
	fmt.Printf("=======================================\n")
	fmt.Printf("Entities: %d (%d skipped)\n", result.Scene.Stats.EntityCount, result.Scene.Stats.SkippedEntities)
	fmt.Printf("Vertices: %d, Faces: %d\n", result.Scene.Stats.TotalVertices, result.Scene.Stats.TotalFaces)
	for name, entity := range result.Scene.Entities {
		fmt.Printf("- %q: %d vertices, color (%.2f, %.2f, %.2f), downsampled=%v\n",
			name, entity.Metadata.VertexCount,
			entity.Material.Color[0], entity.Material.Color[1], entity.Material.Color[2],
			entity.Metadata.Downsampled)
	}

	if len(result.Diagnostics) > 0 {
		fmt.Printf("\nDiagnostics:\n")
		for _, d := range result.Diagnostics {
			fmt.Printf("- [%s/%s] %s (auto-fixed: %v)\n", d.Kind, d.Severity, d.Message, d.AutoFixed)
		}
	}
}

// demoDataset builds a small synthetic borehole survey: a gently dipping
// sandstone surface sampled at nine locations over a 100 x 100 site.
func demoDataset() ([]models.Sample, []models.MaterialLayer) {
	locations := [][3]float64{
		{0, 0, 12.0}, {50, 0, 13.1}, {100, 0, 14.4},
		{0, 50, 10.8}, {50, 50, 12.2}, {100, 50, 13.5},
		{0, 100, 9.7}, {50, 100, 11.0}, {100, 100, 12.3},
	}
	samples := make([]models.Sample, 0, len(locations))
	for i, loc := range locations {
		samples = append(samples, models.Sample{
			ID:          fmt.Sprintf("BH-%02d", i+1),
			X:           loc[0],
			Y:           loc[1],
			Z:           loc[2],
			MaterialTag: "sandstone",
			LayerID:     1,
		})
	}
	layers := []models.MaterialLayer{
		{LayerID: 1, Name: "sandstone", Density: 2.35, Cohesion: 27.0, FrictionAngle: 35.0},
	}
	return samples, layers
}
