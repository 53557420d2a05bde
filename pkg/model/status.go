package model

// ScrubCoverage summarizes how much of the array has been verified and
// how old the verified blocks are.
type ScrubCoverage struct {
	UnscrubbedPercent int `json:"unscrubbed_percent"`
	OldestDays        int `json:"oldest_days"`
	MedianDays        int `json:"median_days"`
	NewestDays        int `json:"newest_days"`
}

// StatusFacts holds the classified output of the status subcommand.
type StatusFacts struct {
	ErrorCount     int            `json:"error_count"`
	ZeroSubSecond  int            `json:"zero_sub_second"`
	SyncInProgress bool           `json:"sync_in_progress"`
	Scrub          *ScrubCoverage `json:"scrub,omitempty"`
	Drives         []DriveStats   `json:"drives,omitempty"`
}

// DriveStats is one row of the per-drive status table.
type DriveStats struct {
	Name            string `json:"name"` // empty for the whole-array row
	FileCount       int    `json:"file_count"`
	FragmentedFiles int    `json:"fragmented_files"`
	ExcessFragments int    `json:"excess_fragments"`
	WastedGB        string `json:"wasted_gb"`
	UsedGB          int    `json:"used_gb"`
	FreeGB          int    `json:"free_gb"`
	UsePercent      int    `json:"use_percent"`
}

// SmartDrive is one row of the SMART health table.
type SmartDrive struct {
	Device      string `json:"device"`
	Disk        string `json:"disk"`
	Serial      string `json:"serial"`
	SizeTB      string `json:"size_tb"`
	Temperature string `json:"temperature"`
	PowerOnDays string `json:"power_on_days"`
	ErrorCount  string `json:"error_count"`
	FailurePct  string `json:"failure_pct"`
}

// SmartReport holds the classified output of the smart subcommand.
type SmartReport struct {
	Drives             []SmartDrive `json:"drives"`
	YearFailurePercent int          `json:"year_failure_percent"`
}
