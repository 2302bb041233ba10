package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

func main() {
	dirs := flag.String("dirs", "data/replays,sim_replays", "Comma-separated replay directories")
	date := flag.String("date", "", "Only summarise this date (YYYY-MM-DD)")
	flag.Parse()

	files, err := replayFiles(strings.Split(*dirs, ","))
	if err != nil {
		log.Fatalf("Failed to list replays: %v", err)
	}
	if len(files) == 0 {
		log.Printf("No replay files under %s", *dirs)
		return
	}

	start := time.Now()
	db, err := openReplays(files)
	if err != nil {
		log.Fatalf("Failed to open replays: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	summaries, err := summarise(ctx, db, *date)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	log.Printf("Read %d replay files in %v", len(files), time.Since(start))

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tSOURCE\tATTEMPTS\tWON\tLOST\tABANDONED\tAVG TICKS\tBEST WIN")
	for _, s := range summaries {
		best := "-"
		if s.BestWin.Valid {
			best = fmt.Sprint(s.BestWin.Int64)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%.1f\t%s\n", s.Date, s.Source, s.Attempts, s.Wins, s.Losses, s.Abandoned, s.AvgTicks, best)
	}
	_ = tw.Flush()
}
