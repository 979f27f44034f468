// Command solve runs one optimization offline: a JSON request file in, the
// solution as JSON out. Useful for benchmarking the solver without the API.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"fleetroute/internal/api"
	"fleetroute/internal/geo"
	"fleetroute/internal/model"
	"fleetroute/internal/solver"
)

func main() {
	input := flag.String("input", "", "path to a JSON request file (same shape as POST /optimize-routes)")
	mode := flag.String("mode", "", "travel mode override: driving|walking|bicycling|transit")
	budgetMs := flag.Int("budget", 0, "time budget in milliseconds (0 = unlimited)")
	scans := flag.Int("scans", 0, "max local search scans (0 = default)")
	verbose := flag.Bool("v", false, "print search statistics to stderr")
	flag.Parse()

	if *input == "" {
		flag.Usage()
		os.Exit(2)
	}
	data, err := os.ReadFile(*input)
	if err != nil {
		log.Fatalf("read input: %v", err)
	}
	var req model.OptimizeRequest
	if err := json.Unmarshal(data, &req); err != nil {
		log.Fatalf("parse input: %v", err)
	}
	if *mode != "" {
		req.Mode = *mode
	}
	if *budgetMs > 0 {
		req.TimeBudgetMs = *budgetMs
	}
	if *scans > 0 {
		req.MaxScans = *scans
	}
	if err := api.ValidateRequest(&req); err != nil {
		log.Fatalf("invalid request: %v", err)
	}

	progress := func(pr solver.Progress) {
		if *verbose {
			fmt.Fprintf(os.Stderr, "state=%s bestDist=%.1f scans=%d\n", pr.State, pr.BestDistM, pr.Scans)
		}
	}
	resp, res, err := api.Optimize(context.Background(), geo.HaversineProvider{}, &req, progress)
	if err != nil {
		log.Fatalf("solve: %v", err)
	}
	if *verbose {
		fmt.Fprintf(os.Stderr, "scans=%d intra=%d inter=%d twoOpt=%d initial=%.1f final=%.1f\n",
			res.Stats.Scans, res.Stats.IntraRelocations, res.Stats.InterRelocations,
			res.Stats.TwoOptMoves, res.Stats.InitialDistM, res.Stats.FinalDistM)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		log.Fatalf("encode output: %v", err)
	}
}
