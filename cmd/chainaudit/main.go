// chainaudit walks the hash chains of a scoring database offline and
// reports, per match, whether the event log is intact. Run it against a
// copy of the production database or a restored backup; it never
// writes.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/thirdumpire/crease/internal/eventlog"
	"github.com/thirdumpire/crease/internal/store"
)

func main() {
	dbPath := flag.String("db", "data/crease.db", "path to the scoring database")
	matchID := flag.String("match", "", "audit a single match instead of all")
	verbose := flag.Bool("v", false, "print every event of audited matches")
	flag.Parse()

	db, err := store.OpenReadOnly(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "chainaudit: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()
	matches := []string{*matchID}
	if *matchID == "" {
		matches, err = eventlog.Matches(ctx, db)
		if err != nil {
			fmt.Fprintf(os.Stderr, "chainaudit: list matches: %v\n", err)
			os.Exit(1)
		}
	}
	if len(matches) == 0 {
		fmt.Println("(no scoring events)")
		return
	}

	broken := 0
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MATCH\tEVENTS\tLAST EVENT\tCHAIN")
	for _, id := range matches {
		if err := auditMatch(ctx, db, w, id, *verbose); err != nil {
			broken++
		}
	}
	w.Flush()

	if broken > 0 {
		fmt.Fprintf(os.Stderr, "\n%d of %d chains broken\n", broken, len(matches))
		os.Exit(2)
	}
	fmt.Printf("\nall %d chains intact\n", len(matches))
}

func auditMatch(ctx context.Context, db *sql.DB, w *tabwriter.Writer, matchID string, verbose bool) error {
	evs, err := eventlog.ReadAll(ctx, db, matchID)
	if err != nil {
		fmt.Fprintf(w, "%s\t-\t-\tERROR: %v\n", matchID, err)
		return err
	}
	last := "-"
	if n := len(evs); n > 0 {
		last = humanize.Time(evs[n-1].Timestamp)
	}

	ok, brokenSeq, err := eventlog.VerifyChain(ctx, db, matchID)
	switch {
	case err != nil:
		fmt.Fprintf(w, "%s\t%d\t%s\tERROR: %v\n", matchID, len(evs), last, err)
		return err
	case !ok:
		fmt.Fprintf(w, "%s\t%d\t%s\tBROKEN at seq %d\n", matchID, len(evs), last, brokenSeq)
		err = fmt.Errorf("chain broken")
	default:
		fmt.Fprintf(w, "%s\t%d\t%s\tok\n", matchID, len(evs), last)
	}

	if verbose {
		for _, ev := range evs {
			marker := " "
			if !ok && ev.Seq >= brokenSeq {
				marker = "!"
			}
			fmt.Fprintf(w, "  %s seq %d\t%s\t%s/%s\t%s\n",
				marker, ev.Seq, ev.Kind, ev.ScorerID, ev.Side, humanize.Bytes(uint64(len(ev.Payload))))
		}
	}
	return err
}
