// Package main is the harvester executable.
//
// Architecture overview:
//   - Enumeration: accessions come from a numeric range under a prefix (GSE1..GSEn), an explicit list, or the
//     series listing of a GPL platform fetched with resty.
//   - Dispatch: keys flow through a bounded in-memory queue to a fixed worker pool sized by harvest.workers.
//     Each worker hands one key at a time to the ingestion coordinator; outcomes are tallied into a run summary.
//   - Fetch pipeline: the Colly-based fetcher POSTs acc=<key> to the GEO accession viewer behind a shared per-host
//     rate limiter. Raw pages are optionally archived to memory, a local directory, or GCS.
//   - Extraction: goquery walks the attribute table of each page. Study pages yield scalar fields, platforms and
//     sample accessions; sample pages yield source name and characteristics, which are merged per attribute.
//   - Persistence & fanout: one row per study is inserted into SQLite (default) or Postgres. Studies already
//     present are skipped. A study.ingested event is published to Pub/Sub when a topic is configured.
//   - Configuration & plumbing: Viper populates config from flags, env (HARVESTER_*) and files; zap provides
//     structured logging; Prometheus metrics are exported from the serve command's /metrics handler.
//
// Quick checklist:
//   - Harvest a range: harvester harvest --start 1 --end 500 --workers 5
//   - Re-read overall designs: harvester refresh GSE1 GSE2
//   - Serve the API: harvester serve --port 8080
package main

import (
	"github.com/JakeFAU/geo-harvester/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
