// Package scraper drives Lobstr.io Google Maps scrape runs through their
// lifecycle: planned, tasks_being_added, running, target_reached or done, and
// completed, with stopped, aborted and failed as side exits.
//
// The squid (the provider's reusable scraper configuration) is shared across
// runs, so every run holds a Lease on it from prepare_squid until the run
// reaches a terminal state or the lease expires.
package scraper
