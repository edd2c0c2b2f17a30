// Package leads defines the scrape run state machine's records and the ports
// through which it reaches the Lobstr.io provider and the database.
package leads

import "time"

// RunStatus is the lifecycle state of a scrape run.
type RunStatus string

// Run statuses persisted in lobstr_runs and scraping_runs.
const (
	StatusPlanned         RunStatus = "planned"
	StatusTasksBeingAdded RunStatus = "tasks_being_added"
	StatusRunning         RunStatus = "running"
	StatusTargetReached   RunStatus = "target_reached"
	StatusDone            RunStatus = "done"
	StatusCompleted       RunStatus = "completed"
	StatusStopped         RunStatus = "stopped"
	StatusAborted         RunStatus = "aborted"
	StatusFailed          RunStatus = "failed"
)

// Terminal reports whether no further provider activity is expected.
func (s RunStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusStopped, StatusAborted, StatusFailed:
		return true
	default:
		return false
	}
}

// Run is one provider scrape run tracked locally.
type Run struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	SquidID          string     `json:"squid_id,omitempty"`
	RunID            string     `json:"run_id,omitempty"`
	Query            string     `json:"query"`
	Location         string     `json:"location"`
	MaxResults       int        `json:"max_results"`
	AbortLimit       int        `json:"abort_limit"`
	Status           RunStatus  `json:"status"`
	ResultsCount     int        `json:"results_count"`
	SavedCount       int        `json:"saved_count"`
	ParentCampaignID string     `json:"parent_campaign_id,omitempty"`
	Error            string     `json:"error,omitempty"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Limit returns the number of results after which the run stops collecting.
func (r Run) Limit() int {
	if r.AbortLimit > 0 {
		return r.AbortLimit
	}
	return r.MaxResults
}

// RunUpdate is a partial write to a run. Nil pointers keep stored values.
type RunUpdate struct {
	Status       RunStatus
	RunID        *string
	ResultsCount *int
	SavedCount   *int
	Error        *string
	StartedAt    *time.Time
	FinishedAt   *time.Time
}

// Campaign is the parent record of a multi-search scrape.
type Campaign struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	Query          string    `json:"query"`
	Location       string    `json:"location"`
	TargetLeads    int       `json:"target_leads"`
	AbortLimit     int       `json:"abort_limit"`
	SearchesNeeded int       `json:"searches_needed"`
	Status         RunStatus `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

// Lead is one scraped business persisted append-only.
type Lead struct {
	RunID           string    `json:"run_id"`
	UserID          string    `json:"user_id"`
	Name            string    `json:"name"`
	Address         string    `json:"address,omitempty"`
	Phone           string    `json:"phone,omitempty"`
	Website         string    `json:"website,omitempty"`
	Rating          float64   `json:"rating,omitempty"`
	ReviewsCount    int       `json:"reviews_count,omitempty"`
	Category        string    `json:"category,omitempty"`
	Latitude        float64   `json:"latitude,omitempty"`
	Longitude       float64   `json:"longitude,omitempty"`
	PlaceID         string    `json:"place_id,omitempty"`
	ScrapedSequence int       `json:"scraped_sequence"`
	ScrapedAt       time.Time `json:"scraped_at"`
}

// Location is a free-form place split into its parts.
type Location struct {
	Raw     string `json:"raw"`
	City    string `json:"city,omitempty"`
	Region  string `json:"region,omitempty"`
	Country string `json:"country,omitempty"`
}

// Structured reports whether the location has both a city and a country.
func (l Location) Structured() bool {
	return l.City != "" && l.Country != ""
}

// SquidSettings are the provider-side knobs reset by prepare_squid.
type SquidSettings struct {
	MaxResults    int
	UniqueResults bool
	Concurrency   int
}

// Squid is the provider's reusable scraper configuration.
type Squid struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	MaxResults int    `json:"max_results"`
	IsActive   bool   `json:"is_active"`
}

// TaskSpec is one task submitted to a squid. Exactly one of URL or the
// structured parameters is used.
type TaskSpec struct {
	URL      string
	Query    string
	City     string
	Region   string
	Country  string
	Language string
}

// Parametric reports whether the task uses structured parameters.
func (t TaskSpec) Parametric() bool {
	return t.URL == ""
}

// ProviderRun is the provider's view of a run.
type ProviderRun struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	TotalResults int    `json:"total_results"`
	Done         bool   `json:"done"`
}

// AbortMethod names the provider call that terminated a run.
type AbortMethod string

// Termination methods, in fallback order.
const (
	AbortMethodAbort AbortMethod = "abort"
	AbortMethodStop  AbortMethod = "stop"
	AbortMethodNone  AbortMethod = "none"
)
