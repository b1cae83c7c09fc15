// internal/database/stats.go
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/rps/internal/game"
	"github.com/jason-s-yu/rps/internal/models"
)

// InsertRoundRecords copies a batch of round records in one transaction.
func InsertRoundRecords(ctx context.Context, recs []models.RoundRecord) error {
	if len(recs) == 0 {
		return nil
	}
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"round_results"},
			[]string{"participant", "outcome", "move", "played_at"},
			pgx.CopyFromSlice(len(recs), func(i int) ([]any, error) {
				r := recs[i]
				return []any{r.Participant, r.Outcome, r.Move, r.PlayedAt}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("copy round_results: %w", err)
		}
		return nil
	})
}

// RoundWriter records rounds straight into Postgres. It satisfies the
// gateway's StatsRecorder for deployments without Redis.
type RoundWriter struct{}

func (RoundWriter) Record(ctx context.Context, participant string, outcome game.Outcome, move game.Move) error {
	return InsertRoundRecords(ctx, []models.RoundRecord{{
		Participant: participant,
		Outcome:     outcome.String(),
		Move:        move.String(),
		PlayedAt:    time.Now().UTC(),
	}})
}

// GetUserStatistics aggregates every recorded round of participant, including
// a per-day breakdown.
func GetUserStatistics(ctx context.Context, participant string) (*models.UserStatistics, error) {
	st := models.UserStatistics{Participant: participant}

	totals := `
	SELECT COUNT(*),
	       COUNT(*) FILTER (WHERE outcome = 'Win'),
	       COUNT(*) FILTER (WHERE outcome = 'Loss'),
	       COUNT(*) FILTER (WHERE outcome = 'Draw'),
	       COUNT(*) FILTER (WHERE move = 'Rock'),
	       COUNT(*) FILTER (WHERE move = 'Paper'),
	       COUNT(*) FILTER (WHERE move = 'Scissors'),
	       MIN(played_at), MAX(played_at)
	FROM round_results
	WHERE participant = $1
	`
	err := DB.QueryRow(ctx, totals, participant).Scan(
		&st.Rounds, &st.Wins, &st.Losses, &st.Draws,
		&st.Rock, &st.Paper, &st.Scissors,
		&st.FirstPlayed, &st.LastPlayed,
	)
	if err != nil {
		return nil, fmt.Errorf("query totals: %w", err)
	}

	history := `
	SELECT date_trunc('day', played_at AT TIME ZONE 'UTC') AS day,
	       COUNT(*) FILTER (WHERE outcome = 'Win'),
	       COUNT(*) FILTER (WHERE outcome = 'Loss'),
	       COUNT(*) FILTER (WHERE outcome = 'Draw')
	FROM round_results
	WHERE participant = $1
	GROUP BY day
	ORDER BY day
	`
	rows, err := DB.Query(ctx, history, participant)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	st.History, err = pgx.CollectRows(rows, pgx.RowToStructByPos[models.DayStatistics])
	if err != nil {
		return nil, fmt.Errorf("collect history: %w", err)
	}
	return &st, nil
}

// ListStatistics returns totals for every participant with more than minRounds
// recorded rounds, best win count first.
func ListStatistics(ctx context.Context, minRounds int) ([]models.UserStatistics, error) {
	q := `
	SELECT r.participant, COALESCE(u.username, ''),
	       COUNT(*),
	       COUNT(*) FILTER (WHERE r.outcome = 'Win'),
	       COUNT(*) FILTER (WHERE r.outcome = 'Loss'),
	       COUNT(*) FILTER (WHERE r.outcome = 'Draw'),
	       COUNT(*) FILTER (WHERE r.move = 'Rock'),
	       COUNT(*) FILTER (WHERE r.move = 'Paper'),
	       COUNT(*) FILTER (WHERE r.move = 'Scissors')
	FROM round_results r
	LEFT JOIN users u ON u.id::text = r.participant
	GROUP BY r.participant, u.username
	HAVING COUNT(*) > $1
	ORDER BY 4 DESC, 3 DESC
	`
	rows, err := DB.Query(ctx, q, minRounds)
	if err != nil {
		return nil, fmt.Errorf("query statistics: %w", err)
	}
	defer rows.Close()

	var out []models.UserStatistics
	for rows.Next() {
		var st models.UserStatistics
		if err := rows.Scan(
			&st.Participant, &st.Username,
			&st.Rounds, &st.Wins, &st.Losses, &st.Draws,
			&st.Rock, &st.Paper, &st.Scissors,
		); err != nil {
			return nil, fmt.Errorf("scan statistics: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
