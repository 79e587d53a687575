// resync-sessions recomputes each session's cash total from the movement log
// over a date range, repairing any drift left by missed change processing.
// Period balance rows are created lazily for each day touched.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... go run ./cmd/resync-sessions -from 2024-01-01 -to 2024-01-31
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"bitbucket.org/assurdata/agence_backend/config"
	"bitbucket.org/assurdata/agence_backend/models"
	"bitbucket.org/assurdata/agence_backend/utils"
)

func main() {
	from := flag.String("from", "", "Start date (YYYY-MM-DD). Required.")
	to := flag.String("to", "", "End date (YYYY-MM-DD). Defaults to today.")
	dryRun := flag.Bool("dry-run", false, "Report discrepancies without writing.")
	flag.Parse()

	if *from == "" {
		fmt.Fprintln(os.Stderr, "-from is required (YYYY-MM-DD)")
		os.Exit(2)
	}
	start, err := time.Parse("2006-01-02", *from)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -from: %v\n", err)
		os.Exit(2)
	}
	end := time.Now()
	if *to != "" {
		end, err = time.Parse("2006-01-02", *to)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -to: %v\n", err)
			os.Exit(2)
		}
	}

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}

	ctx = utils.SetUserIdInContext(ctx, 0)
	ctx = utils.SetUserNameInContext(ctx, "ResyncSessions")

	startDay, err := utils.ConvertToDate(start, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to convert start date: %v\n", err)
		os.Exit(1)
	}
	endDay, err := utils.ConvertToDate(end, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to convert end date: %v\n", err)
		os.Exit(1)
	}

	if *dryRun {
		discrepancies, err := models.VerifyAndReconcile(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "verification failed: %v\n", err)
			os.Exit(1)
		}
		for _, d := range discrepancies {
			if d.SessionDate.Before(startDay) || d.SessionDate.After(endDay) {
				continue
			}
			fmt.Printf("%s stored=%s recomputed=%s delta=%s\n",
				d.SessionDate.Format("2006-01-02"), d.Stored, d.Recomputed, d.Delta)
		}
		return
	}

	synced := 0
	for day := startDay; !day.After(endDay); day = day.AddDate(0, 0, 1) {
		if _, err := models.SyncSession(ctx, day); err != nil {
			fmt.Fprintf(os.Stderr, "%s: sync failed: %v\n", day.Format("2006-01-02"), err)
			continue
		}
		if _, err := models.EnsurePeriodBalance(ctx, day); err != nil {
			fmt.Fprintf(os.Stderr, "%s: period balance failed: %v\n", day.Format("2006-01-02"), err)
			continue
		}
		synced++
	}

	fmt.Printf("Resync complete: %d day(s)\n", synced)
}
