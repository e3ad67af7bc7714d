package engine

import (
	"context"
	"sort"
	"time"

	"fresh-hub/internal/models"
)

// Rankings returns every user ordered by score descending, lower id first on ties.
func (e *Engine) Rankings(ctx context.Context) ([]*models.User, error) {
	users, err := e.store.GetAllUsers(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].Score != users[j].Score {
			return users[i].Score > users[j].Score
		}
		return users[i].ID < users[j].ID
	})
	return users, nil
}

// Leaderboard returns the top LeaderboardSize users.
func (e *Engine) Leaderboard(ctx context.Context) ([]*models.User, error) {
	defer e.observe("leaderboard", time.Now())

	ranked, err := e.Rankings(ctx)
	if err != nil {
		return nil, err
	}
	if len(ranked) > LeaderboardSize {
		ranked = ranked[:LeaderboardSize]
	}
	return ranked, nil
}

// RankOf returns the 1-based position of userID in ranked, or Unranked.
func RankOf(userID int64, ranked []*models.User) int {
	for i, user := range ranked {
		if user.ID == userID {
			return i + 1
		}
	}
	return Unranked
}

// UserRank ranks userID against all users, not just the leaderboard.
func (e *Engine) UserRank(ctx context.Context, userID int64) (int, *models.User, error) {
	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return Unranked, nil, err
	}
	ranked, err := e.Rankings(ctx)
	if err != nil {
		return Unranked, nil, err
	}
	return RankOf(userID, ranked), user, nil
}
