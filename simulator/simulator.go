package simulator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"fresh-hub/internal/models"

	"github.com/google/uuid"
)

type SimConfig struct {
	NumUsers         int
	PostsPerUser     int
	Workers          int
	TogglesPerWorker int
	ZipfS            float64 // skew of post popularity, must be > 1
	EngineURL        string
	RequestTimeout   time.Duration
}

// DefaultSimConfig is a short run against a local engine.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		NumUsers:         20,
		PostsPerUser:     2,
		Workers:          8,
		TogglesPerWorker: 100,
		ZipfS:            1.07,
		EngineURL:        "http://localhost:8080",
		RequestTimeout:   10 * time.Second,
	}
}

func (c SimConfig) validate() error {
	switch {
	case c.NumUsers <= 0:
		return fmt.Errorf("NumUsers must be positive")
	case c.PostsPerUser <= 0:
		return fmt.Errorf("PostsPerUser must be positive")
	case c.Workers <= 0:
		return fmt.Errorf("Workers must be positive")
	case c.ZipfS <= 1:
		return fmt.Errorf("ZipfS must be greater than 1")
	}
	return nil
}

type SimulationStats struct {
	mu              sync.Mutex
	StartTime       time.Time
	TotalRequests   int64
	SuccessRequests int64
	FailedRequests  int64
	TotalLatency    time.Duration
	Likes           int
	Unlikes         int
}

// StatsSnapshot is a copy of the counters safe to read after a run
type StatsSnapshot struct {
	Duration        time.Duration
	TotalRequests   int64
	SuccessRequests int64
	FailedRequests  int64
	AverageLatency  time.Duration
	Likes           int
	Unlikes         int
}

// SimulatedUser tracks what the simulator created for one account
type SimulatedUser struct {
	ID       int64
	Username string
	Posts    []int64
}

type likeKey struct {
	postID int64
	userID int64
}

type Simulator struct {
	config SimConfig
	stats  *SimulationStats
	client *http.Client
	logger *slog.Logger

	users     []*SimulatedUser
	posts     []int64
	postOwner map[int64]int64

	mu      sync.Mutex
	toggles map[likeKey]int
}

func NewSimulator(config SimConfig, logger *slog.Logger) *Simulator {
	return &Simulator{
		config:    config,
		stats:     &SimulationStats{StartTime: time.Now()},
		client:    &http.Client{Timeout: config.RequestTimeout},
		logger:    logger,
		postOwner: make(map[int64]int64),
		toggles:   make(map[likeKey]int),
	}
}

// Report is the outcome of a run. Violations lists every consistency check
// the engine failed.
type Report struct {
	Stats      StatsSnapshot
	Violations []string
}

// Run registers users, creates posts, toggles likes concurrently and then
// checks the engine's counters against what was sent.
func (s *Simulator) Run(ctx context.Context) (*Report, error) {
	if err := s.config.validate(); err != nil {
		return nil, err
	}

	s.logger.Info("Phase 1: creating users", "count", s.config.NumUsers)
	if err := s.createUsers(ctx); err != nil {
		return nil, fmt.Errorf("failed to create users: %w", err)
	}

	s.logger.Info("Phase 2: creating posts", "perUser", s.config.PostsPerUser)
	if err := s.createPosts(ctx); err != nil {
		return nil, fmt.Errorf("failed to create posts: %w", err)
	}

	s.logger.Info("Phase 3: toggling likes", "workers", s.workerCount(), "togglesPerWorker", s.config.TogglesPerWorker)
	if err := s.simulateLikes(ctx); err != nil {
		return nil, fmt.Errorf("failed to simulate likes: %w", err)
	}

	s.logger.Info("Phase 4: verifying counters")
	violations, err := s.verify(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to verify: %w", err)
	}
	return &Report{Stats: s.Snapshot(), Violations: violations}, nil
}

func (s *Simulator) Snapshot() StatsSnapshot {
	s.stats.mu.Lock()
	defer s.stats.mu.Unlock()

	snap := StatsSnapshot{
		Duration:        time.Since(s.stats.StartTime),
		TotalRequests:   s.stats.TotalRequests,
		SuccessRequests: s.stats.SuccessRequests,
		FailedRequests:  s.stats.FailedRequests,
		Likes:           s.stats.Likes,
		Unlikes:         s.stats.Unlikes,
	}
	if s.stats.TotalRequests > 0 {
		snap.AverageLatency = s.stats.TotalLatency / time.Duration(s.stats.TotalRequests)
	}
	return snap
}

func (s *Simulator) createUsers(ctx context.Context) error {
	s.users = make([]*SimulatedUser, 0, s.config.NumUsers)
	for i := 0; i < s.config.NumUsers; i++ {
		username := "sim-" + uuid.NewString()
		var user models.User
		if err := s.makeRequest(ctx, http.MethodPost, "/api/users", map[string]string{"username": username}, &user); err != nil {
			return err
		}
		s.users = append(s.users, &SimulatedUser{ID: user.ID, Username: user.Username})
	}
	return nil
}

func (s *Simulator) createPosts(ctx context.Context) error {
	for _, user := range s.users {
		for i := 0; i < s.config.PostsPerUser; i++ {
			body := map[string]interface{}{
				"userId":  user.ID,
				"content": fmt.Sprintf("post %d from %s", i+1, user.Username),
			}
			var post models.Post
			if err := s.makeRequest(ctx, http.MethodPost, "/api/posts", body, &post); err != nil {
				return err
			}
			user.Posts = append(user.Posts, post.ID)
			s.posts = append(s.posts, post.ID)
			s.postOwner[post.ID] = user.ID
		}
	}
	// Shuffle so that Zipf popularity does not follow author order.
	rand.Shuffle(len(s.posts), func(i, j int) { s.posts[i], s.posts[j] = s.posts[j], s.posts[i] })
	return nil
}

func (s *Simulator) recordRequestMetrics(start time.Time, err error) {
	s.stats.mu.Lock()
	defer s.stats.mu.Unlock()

	s.stats.TotalRequests++
	s.stats.TotalLatency += time.Since(start)
	if err != nil {
		s.stats.FailedRequests++
	} else {
		s.stats.SuccessRequests++
	}
}

// makeRequest sends data as JSON and decodes a successful response into out.
func (s *Simulator) makeRequest(ctx context.Context, method, endpoint string, data, out interface{}) error {
	var body []byte
	if data != nil {
		var err error
		if body, err = json.Marshal(data); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.EngineURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	err = s.do(req, out)
	s.recordRequestMetrics(start, err)
	return err
}

func (s *Simulator) do(req *http.Request, out interface{}) error {
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp struct {
			Message string `json:"message"`
		}
		raw, _ := io.ReadAll(resp.Body)
		json.Unmarshal(raw, &errResp)
		return fmt.Errorf("%s %s failed with status %d: %s", req.Method, req.URL.Path, resp.StatusCode, errResp.Message)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
