package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/curricula-backend/internal/app"
	types "github.com/yungbote/curricula-backend/internal/domain"
	"github.com/yungbote/curricula-backend/internal/services"
)

func main() {
	var dateStr string
	var dryRun bool
	flag.StringVar(&dateStr, "date", "", "snapshot date as YYYY-MM-DD (default today UTC)")
	flag.BoolVar(&dryRun, "dry-run", false, "compute snapshots without triggering replans")
	flag.Parse()

	date := time.Now().UTC()
	if dateStr != "" {
		parsed, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			fmt.Printf("bad -date %q: %v\n", dateStr, err)
			os.Exit(1)
		}
		date = parsed
	}

	application, err := app.New()
	if err != nil {
		fmt.Printf("init app: %v\n", err)
		os.Exit(1)
	}
	defer application.Close()

	ctx := context.Background()

	var replan services.ReplanFunc
	if !dryRun {
		replan = func(ctx context.Context, graphID uuid.UUID, _ *types.AnalyticsSnapshot) error {
			res, err := application.Services.Curriculum.Replan(ctx, graphID)
			if err != nil {
				return err
			}
			fmt.Printf("replanned graph %s: resequenced=%d skippable=%d\n", graphID, res.Resequenced, res.SkippableMarked)
			return nil
		}
	}

	processed, err := application.Services.Analytics.ComputeAll(ctx, date, replan)
	if err != nil {
		fmt.Printf("sweep failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("done; snapshots=%d date=%s\n", processed, date.Format("2006-01-02"))
}
