package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"fresh-hub/internal/utils"
)

// CreatePostRequest represents a request to create a new post
type CreatePostRequest struct {
	UserID   int64   `json:"userId"`
	Content  string  `json:"content"`
	ImageURL *string `json:"imageUrl"`
}

// LikeRequest identifies the user toggling a like
type LikeRequest struct {
	UserID int64 `json:"userId"`
}

// HealthResponse reports liveness plus a few live counters
type HealthResponse struct {
	Status     string                `json:"status"`
	Users      int                   `json:"users"`
	Posts      int                   `json:"posts"`
	PostActors int                   `json:"postActors"`
	Metrics    utils.MetricsSnapshot `json:"metrics"`
	ServerTime time.Time             `json:"serverTime"`
}

func (s *Server) HandleCreatePost() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreatePostRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeMessage(w, http.StatusBadRequest, "Invalid post data")
			return
		}
		if req.UserID == 0 {
			writeMessage(w, http.StatusBadRequest, "User ID is required")
			return
		}

		ctx, cancel := s.requestContext(r)
		defer cancel()

		post, err := s.Dispatcher.CreatePost(ctx, req.UserID, req.Content, req.ImageURL)
		if err != nil {
			s.writeError(w, r, err, "Failed to create post")
			return
		}
		writeJSON(w, http.StatusOK, post)
	}
}

func (s *Server) HandleGetPosts() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := s.requestContext(r)
		defer cancel()

		posts, err := s.Engine.GetPosts(ctx)
		if err != nil {
			s.writeError(w, r, err, "Failed to get posts")
			return
		}
		writeJSON(w, http.StatusOK, posts)
	}
}

// HandleToggleLike likes the post for the user, or retracts an existing like
func (s *Server) HandleToggleLike() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		postID, ok := pathID(r)
		if !ok {
			writeMessage(w, http.StatusBadRequest, "Invalid post ID")
			return
		}

		var req LikeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == 0 {
			writeMessage(w, http.StatusBadRequest, "User ID is required")
			return
		}

		ctx, cancel := s.requestContext(r)
		defer cancel()

		post, err := s.Dispatcher.ToggleLike(ctx, postID, req.UserID)
		if err != nil {
			s.writeError(w, r, err, "Failed to like post")
			return
		}
		writeJSON(w, http.StatusOK, post)
	}
}

// HandleHealth handles health check requests
func (s *Server) HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := s.requestContext(r)
		defer cancel()

		users, err := s.Engine.Store().GetAllUsers(ctx)
		if err != nil {
			s.writeError(w, r, err, "Failed to count users")
			return
		}
		posts, err := s.Engine.Store().GetAllPosts(ctx)
		if err != nil {
			s.writeError(w, r, err, "Failed to count posts")
			return
		}
		postActors, err := s.Dispatcher.PostActorCount(ctx)
		if err != nil {
			s.writeError(w, r, err, "Failed to count post actors")
			return
		}

		writeJSON(w, http.StatusOK, HealthResponse{
			Status:     "healthy",
			Users:      len(users),
			Posts:      len(posts),
			PostActors: postActors,
			Metrics:    s.Metrics.Snapshot(),
			ServerTime: time.Now(),
		})
	}
}
