package models

// Avatar selects one of the built-in profile pictures.
type Avatar string

const (
	AvatarOne   Avatar = "1"
	AvatarTwo   Avatar = "2"
	AvatarThree Avatar = "3"

	DefaultAvatar = AvatarOne
)

// Valid reports whether a is one of the known avatars.
func (a Avatar) Valid() bool {
	switch a {
	case AvatarOne, AvatarTwo, AvatarThree:
		return true
	}
	return false
}

type User struct {
	ID             int64  `json:"id" db:"id"`
	Username       string `json:"username" db:"username"`
	Bio            string `json:"bio" db:"bio"`
	Avatar         Avatar `json:"avatar" db:"avatar"`
	Score          int    `json:"score" db:"score"`
	PostsCount     int    `json:"postsCount" db:"posts_count"`
	FollowersCount int    `json:"followersCount" db:"followers_count"` // display only
	FollowingCount int    `json:"followingCount" db:"following_count"` // display only
}

// Clone returns a copy that can be mutated without touching the original.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
