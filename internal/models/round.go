package models

import "time"

// RoundRecord is one participant's side of a resolved round, as queued for
// the historian and stored in round_results.
type RoundRecord struct {
	Participant string    `json:"participant"`
	Outcome     string    `json:"outcome"`
	Move        string    `json:"move"`
	PlayedAt    time.Time `json:"playedAt"`
}

// DayStatistics aggregates a participant's rounds for one calendar day (UTC).
type DayStatistics struct {
	Day    time.Time `json:"day"`
	Wins   int       `json:"wins"`
	Losses int       `json:"losses"`
	Draws  int       `json:"draws"`
}

// UserStatistics aggregates every recorded round of a participant.
type UserStatistics struct {
	Participant string          `json:"participant"`
	Username    string          `json:"username,omitempty"`
	Rounds      int             `json:"rounds"`
	Wins        int             `json:"wins"`
	Losses      int             `json:"losses"`
	Draws       int             `json:"draws"`
	Rock        int             `json:"rock"`
	Paper       int             `json:"paper"`
	Scissors    int             `json:"scissors"`
	FirstPlayed *time.Time      `json:"firstPlayed,omitempty"`
	LastPlayed  *time.Time      `json:"lastPlayed,omitempty"`
	History     []DayStatistics `json:"history,omitempty"`
}
