package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/jason-s-yu/rps/internal/auth"
	"github.com/jason-s-yu/rps/internal/database"
	"github.com/jason-s-yu/rps/internal/game"
	"github.com/jason-s-yu/rps/internal/models"
	"github.com/sirupsen/logrus"
)

// StatsReader is the read side of round statistics.
type StatsReader interface {
	UserStatistics(ctx context.Context, participant string) (*models.UserStatistics, error)
	AllStatistics(ctx context.Context, minRounds int) ([]models.UserStatistics, error)
}

// PostgresStats reads statistics from the database package.
type PostgresStats struct{}

func (PostgresStats) UserStatistics(ctx context.Context, participant string) (*models.UserStatistics, error) {
	return database.GetUserStatistics(ctx, participant)
}

func (PostgresStats) AllStatistics(ctx context.Context, minRounds int) ([]models.UserStatistics, error) {
	return database.ListStatistics(ctx, minRounds)
}

// UserStatsHandler returns the caller's own statistics.
func UserStatsHandler(logger *logrus.Logger, stats StatsReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		participant, err := auth.Participant(r)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		st, err := stats.UserStatistics(r.Context(), participant)
		if err != nil {
			logger.WithError(err).WithField("participant", participant).Error("failed to load statistics")
			http.Error(w, "failed to load statistics", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// AllStatsHandler lists participants with more than minRounds rounds. The
// caller may raise the threshold with ?minRounds=N but never lower it.
func AllStatsHandler(logger *logrus.Logger, stats StatsReader, minRounds int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		threshold := minRounds
		if v := r.URL.Query().Get("minRounds"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				http.Error(w, "invalid minRounds", http.StatusBadRequest)
				return
			}
			threshold = max(threshold, n)
		}
		list, err := stats.AllStatistics(r.Context(), threshold)
		if err != nil {
			logger.WithError(err).Error("failed to list statistics")
			http.Error(w, "failed to load statistics", http.StatusInternalServerError)
			return
		}
		if list == nil {
			list = []models.UserStatistics{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// LogStats is a StatsRecorder that only logs, for running without Redis or
// Postgres.
type LogStats struct {
	Logger *logrus.Logger
}

func (l LogStats) Record(_ context.Context, participant string, outcome game.Outcome, move game.Move) error {
	l.Logger.WithFields(logrus.Fields{
		"participant": participant,
		"outcome":     outcome,
		"move":        move,
	}).Info("round recorded")
	return nil
}
