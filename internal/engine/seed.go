package engine

import (
	"context"

	"fresh-hub/internal/models"
)

var sampleUsers = []models.User{
	{ID: 1, Username: "Mike Chen", Bio: "Frontend Developer", Avatar: models.AvatarTwo, Score: 1456, PostsCount: 24, FollowersCount: 892, FollowingCount: 156},
	{ID: 2, Username: "Sarah Johnson", Bio: "UX Designer", Avatar: models.AvatarOne, Score: 1247, PostsCount: 18, FollowersCount: 743, FollowingCount: 234},
	{ID: 3, Username: "Emma Rodriguez", Bio: "Full Stack Developer", Avatar: models.AvatarThree, Score: 1089, PostsCount: 31, FollowersCount: 567, FollowingCount: 189},
	{ID: 4, Username: "Alex Thompson", Bio: "Product Manager", Avatar: models.AvatarTwo, Score: 967, PostsCount: 15, FollowersCount: 432, FollowingCount: 98},
	{ID: 5, Username: "Jessica Wilson", Bio: "Data Scientist", Avatar: models.AvatarOne, Score: 834, PostsCount: 22, FollowersCount: 321, FollowingCount: 167},
}

// SeedSampleUsers fills an empty store with the demo community. It returns
// the number of users inserted.
func (e *Engine) SeedSampleUsers(ctx context.Context) (int, error) {
	existing, err := e.store.GetAllUsers(ctx)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}

	for i := range sampleUsers {
		user := sampleUsers[i]
		if err := e.store.CreateUser(ctx, &user); err != nil {
			return i, err
		}
	}
	e.logger.Info("seeded sample users", "count", len(sampleUsers))
	return len(sampleUsers), nil
}
