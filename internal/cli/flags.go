package cli

import "github.com/runnerr0/placesimport/internal/logger"

// GlobalFlags holds flags available to all subcommands.
type GlobalFlags struct {
	Config  string `long:"config" description:"Path to config file" default:""`
	JSON    bool   `long:"json" description:"Output in JSON format"`
	Verbose bool   `long:"verbose" description:"Enable debug logging"`
	Version bool   `long:"version" description:"Show version and exit"`
}

// ImportCommand — import a takeout history export into a places database.
type ImportCommand struct {
	BatchSize     *int     `long:"batch-size" description:"Entries per transaction; 0 commits once at the end (default 1000)"`
	Stream        bool     `long:"stream" description:"Decode the export one entry at a time instead of loading it whole"`
	DryRun        bool     `long:"dry-run" description:"Apply every batch and roll it back"`
	StrictVisits  bool     `long:"strict-visits" description:"Treat visits as duplicates only when URL and timestamp both match"`
	Schema        string   `long:"schema" description:"Destination layout: auto | v1 | v2"`
	ProgressDir   string   `long:"progress-dir" description:"Directory for the resume database"`
	Resume        bool     `long:"resume" description:"Skip entries a previous interrupted run committed"`
	ExcludeDomain []string `long:"exclude-domain" description:"Skip history of this domain and its subdomains (repeatable)"`
	MetricsFile   string   `long:"metrics-file" description:"Write Prometheus metrics to this textfile after the run"`

	Args struct {
		Takeout  string `positional-arg-name:"takeout-json" description:"Path to BrowserHistory.json"`
		Database string `positional-arg-name:"places-db" description:"Path to places.sqlite"`
	} `positional-args:"yes" required:"yes"`

	globals *GlobalFlags
	version string
	log     logger.Logger // injectable for testing; nil builds one from config
}

// StatusCommand — show statistics of a places database.
type StatusCommand struct {
	Args struct {
		Database string `positional-arg-name:"places-db" description:"Path to places.sqlite"`
	} `positional-args:"yes" required:"yes"`

	globals *GlobalFlags
	version string
}

// InitCommand — create an empty places database.
type InitCommand struct {
	Schema string `long:"schema" description:"Layout to create: v1 | v2" default:"v2"`

	Args struct {
		Database string `positional-arg-name:"places-db" description:"Path to places.sqlite"`
	} `positional-args:"yes" required:"yes"`

	globals *GlobalFlags
	version string
}

// HashCommand — print the url_hash places.sqlite stores for each URL.
type HashCommand struct {
	Database string `long:"database" description:"Also look each URL up in this places.sqlite"`

	Args struct {
		URLs []string `positional-arg-name:"url" description:"URLs to hash"`
	} `positional-args:"yes" required:"yes"`

	globals *GlobalFlags
	version string
}
