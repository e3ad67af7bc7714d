package simulator

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"sort"
	"time"

	"fresh-hub/internal/models"

	"golang.org/x/sync/errgroup"
)

const (
	postCreationBonus = 5
	leaderboardSize   = 20
)

func (s *Simulator) workerCount() int {
	return min(s.config.Workers, len(s.users))
}

// simulateLikes gives each worker a disjoint set of users, so toggles for
// one (post, user) pair are never in flight concurrently and the final like
// state is known from the toggle count.
func (s *Simulator) simulateLikes(ctx context.Context) error {
	workers := s.workerCount()
	g, ctx := errgroup.WithContext(ctx)

	for w := 0; w < workers; w++ {
		var own []*SimulatedUser
		for i := w; i < len(s.users); i += workers {
			own = append(own, s.users[i])
		}

		seed := time.Now().UnixNano() + int64(w)
		g.Go(func() error {
			r := rand.New(rand.NewSource(seed))
			zipf := rand.NewZipf(r, s.config.ZipfS, 1, uint64(len(s.posts)-1))

			for i := 0; i < s.config.TogglesPerWorker; i++ {
				user := own[r.Intn(len(own))]
				postID := s.posts[zipf.Uint64()]
				if err := s.toggleLike(ctx, postID, user.ID); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *Simulator) toggleLike(ctx context.Context, postID, userID int64) error {
	var post models.Post
	endpoint := fmt.Sprintf("/api/posts/%d/like", postID)
	if err := s.makeRequest(ctx, http.MethodPost, endpoint, map[string]int64{"userId": userID}, &post); err != nil {
		return err
	}

	s.mu.Lock()
	s.toggles[likeKey{postID: postID, userID: userID}]++
	liked := s.toggles[likeKey{postID: postID, userID: userID}]%2 == 1
	s.mu.Unlock()

	s.stats.mu.Lock()
	if liked {
		s.stats.Likes++
	} else {
		s.stats.Unlikes++
	}
	s.stats.mu.Unlock()
	return nil
}

// expected derives per-post like counts and scores from the recorded toggles.
// Every odd toggle is a like and awards a point; unlikes take none back.
func (s *Simulator) expected() (likes map[int64]int, scores map[int64]int) {
	likes = make(map[int64]int)
	scores = make(map[int64]int)
	for _, postID := range s.posts {
		scores[postID] = postCreationBonus
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, n := range s.toggles {
		scores[key.postID] += (n + 1) / 2
		if n%2 == 1 {
			likes[key.postID]++
		}
	}
	return likes, scores
}

func (s *Simulator) verify(ctx context.Context) ([]string, error) {
	var violations []string
	expectedLikes, expectedScores := s.expected()

	var feed []models.PostWithUser
	if err := s.makeRequest(ctx, http.MethodGet, "/api/posts", nil, &feed); err != nil {
		return nil, err
	}
	seen := make(map[int64]bool)
	for _, post := range feed {
		if _, ours := s.postOwner[post.ID]; !ours {
			continue
		}
		seen[post.ID] = true
		if post.Likes != expectedLikes[post.ID] {
			violations = append(violations, fmt.Sprintf("post %d: likes %d, expected %d", post.ID, post.Likes, expectedLikes[post.ID]))
		}
		if post.Score != expectedScores[post.ID] {
			violations = append(violations, fmt.Sprintf("post %d: score %d, expected %d", post.ID, post.Score, expectedScores[post.ID]))
		}
	}
	for postID := range s.postOwner {
		if !seen[postID] {
			violations = append(violations, fmt.Sprintf("post %d missing from feed", postID))
		}
	}

	for _, user := range s.users {
		want := 0
		for _, postID := range user.Posts {
			want += expectedScores[postID]
		}

		var got models.User
		if err := s.makeRequest(ctx, http.MethodGet, fmt.Sprintf("/api/users/%d", user.ID), nil, &got); err != nil {
			return nil, err
		}
		if got.Score != want {
			violations = append(violations, fmt.Sprintf("user %d: score %d, expected %d", user.ID, got.Score, want))
		}
		if got.PostsCount != len(user.Posts) {
			violations = append(violations, fmt.Sprintf("user %d: postsCount %d, expected %d", user.ID, got.PostsCount, len(user.Posts)))
		}
	}

	var board []models.User
	if err := s.makeRequest(ctx, http.MethodGet, "/api/leaderboard", nil, &board); err != nil {
		return nil, err
	}
	if len(board) > leaderboardSize {
		violations = append(violations, fmt.Sprintf("leaderboard has %d entries", len(board)))
	}
	ordered := sort.SliceIsSorted(board, func(i, j int) bool {
		if board[i].Score != board[j].Score {
			return board[i].Score > board[j].Score
		}
		return board[i].ID < board[j].ID
	})
	if !ordered {
		violations = append(violations, "leaderboard is not ordered by score")
	}

	return violations, nil
}
