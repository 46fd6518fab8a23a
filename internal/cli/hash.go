package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-json"

	"github.com/runnerr0/placesimport/internal/places"
	"github.com/runnerr0/placesimport/internal/urlhash"
	"github.com/runnerr0/placesimport/internal/weburl"
)

type hashJSON struct {
	Input string `json:"input"`
	URL   string `json:"url"`
	Hash  uint64 `json:"url_hash"`

	// Set only with --database.
	Place *placeJSON `json:"place,omitempty"`
}

type placeJSON struct {
	Stored     bool       `json:"stored"`
	ID         int64      `json:"id,omitempty"`
	Title      string     `json:"title,omitempty"`
	VisitCount int64      `json:"visit_count"`
	LastVisit  *time.Time `json:"last_visit,omitempty"`
}

// Execute implements the go-flags Commander interface for HashCommand.
func (c *HashCommand) Execute(args []string) error {
	results := make([]hashJSON, 0, len(c.Args.URLs))
	for _, raw := range c.Args.URLs {
		u, err := weburl.Parse(raw)
		if err != nil {
			return err
		}
		h, err := urlhash.Hash(u.String())
		if err != nil {
			return fmt.Errorf("hash %q: %w", raw, err)
		}
		results = append(results, hashJSON{Input: raw, URL: u.String(), Hash: h})
	}

	if c.Database != "" {
		if err := c.lookup(context.Background(), results); err != nil {
			return err
		}
	}

	if c.globals != nil && c.globals.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	for _, r := range results {
		switch {
		case r.Place == nil:
			fmt.Printf("%d\t%s\n", r.Hash, r.URL)
		case r.Place.Stored:
			fmt.Printf("%d\t%s\tplace %d, %s visits\n", r.Hash, r.URL, r.Place.ID, formatNumber(r.Place.VisitCount))
		default:
			fmt.Printf("%d\t%s\tnot stored\n", r.Hash, r.URL)
		}
	}
	return nil
}

// lookup fills in the stored place of each result from --database.
func (c *HashCommand) lookup(ctx context.Context, results []hashJSON) error {
	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}
	store, db, err := openStore(ctx, cfg, c.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	defer store.Close()

	for i := range results {
		place, err := store.PlaceByURL(ctx, results[i].URL)
		if errors.Is(err, places.ErrPlaceNotFound) {
			results[i].Place = &placeJSON{}
			continue
		}
		if err != nil {
			return err
		}
		results[i].Place = &placeJSON{
			Stored:     true,
			ID:         place.ID,
			Title:      place.Title,
			VisitCount: place.VisitCount,
		}
		if !place.LastVisitDate.IsZero() {
			results[i].Place.LastVisit = &place.LastVisitDate
		}
	}
	return nil
}
