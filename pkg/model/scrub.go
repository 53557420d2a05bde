package model

// ScrubParams are the parameters passed to the scrub subcommand.
type ScrubParams struct {
	Percent    int  `json:"percent"`
	MinAgeDays int  `json:"min_age_days"`
	IncludeNew bool `json:"include_new"`
}
