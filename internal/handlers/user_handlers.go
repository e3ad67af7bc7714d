package handlers

import (
	"encoding/json"
	"net/http"

	"fresh-hub/internal/engine"
	"fresh-hub/internal/models"
)

// CreateUserRequest represents a request to register a new user
type CreateUserRequest struct {
	Username string        `json:"username"`
	Bio      string        `json:"bio"`
	Avatar   models.Avatar `json:"avatar"`
}

// UpdateUserRequest changes only the fields present in the body
type UpdateUserRequest struct {
	Username *string        `json:"username"`
	Bio      *string        `json:"bio"`
	Avatar   *models.Avatar `json:"avatar"`
}

// RankResponse is the position of one user in the full ranking
type RankResponse struct {
	UserID int64 `json:"userId"`
	Rank   int   `json:"rank"`
	Score  int   `json:"score"`
}

// HandleCreateUser handles requests to register a new user
func (s *Server) HandleCreateUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateUserRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeMessage(w, http.StatusBadRequest, "Invalid user data")
			return
		}

		ctx, cancel := s.requestContext(r)
		defer cancel()

		user, err := s.Dispatcher.RegisterUser(ctx, engine.NewUser{
			Username: req.Username,
			Bio:      req.Bio,
			Avatar:   req.Avatar,
		})
		if err != nil {
			s.writeError(w, r, err, "Failed to create user")
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}

func (s *Server) HandleGetUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			writeMessage(w, http.StatusBadRequest, "Invalid user ID")
			return
		}

		ctx, cancel := s.requestContext(r)
		defer cancel()

		user, err := s.Engine.GetUser(ctx, id)
		if err != nil {
			s.writeError(w, r, err, "Failed to get user")
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}

func (s *Server) HandleUpdateUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			writeMessage(w, http.StatusBadRequest, "Invalid user ID")
			return
		}

		var req UpdateUserRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeMessage(w, http.StatusBadRequest, "Invalid user data")
			return
		}

		ctx, cancel := s.requestContext(r)
		defer cancel()

		user, err := s.Dispatcher.UpdateProfile(ctx, id, engine.UserPatch{
			Username: req.Username,
			Bio:      req.Bio,
			Avatar:   req.Avatar,
		})
		if err != nil {
			s.writeError(w, r, err, "Failed to update user")
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}

func (s *Server) HandleGetUserPosts() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			writeMessage(w, http.StatusBadRequest, "Invalid user ID")
			return
		}

		ctx, cancel := s.requestContext(r)
		defer cancel()

		posts, err := s.Engine.GetUserPosts(ctx, id)
		if err != nil {
			s.writeError(w, r, err, "Failed to get user posts")
			return
		}
		writeJSON(w, http.StatusOK, posts)
	}
}

// HandleGetUserRank reports the user's position among all users, which may
// be beyond the leaderboard.
func (s *Server) HandleGetUserRank() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			writeMessage(w, http.StatusBadRequest, "Invalid user ID")
			return
		}

		ctx, cancel := s.requestContext(r)
		defer cancel()

		rank, user, err := s.Engine.UserRank(ctx, id)
		if err != nil {
			s.writeError(w, r, err, "Failed to get rank")
			return
		}
		writeJSON(w, http.StatusOK, RankResponse{UserID: user.ID, Rank: rank, Score: user.Score})
	}
}

func (s *Server) HandleLeaderboard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := s.requestContext(r)
		defer cancel()

		board, err := s.Engine.Leaderboard(ctx)
		if err != nil {
			s.writeError(w, r, err, "Failed to get leaderboard")
			return
		}
		writeJSON(w, http.StatusOK, board)
	}
}
