package models

import "time"

type Post struct {
	ID        int64     `json:"id" db:"id"`
	UserID    int64     `json:"userId" db:"user_id"`
	Content   string    `json:"content" db:"content"`
	ImageURL  *string   `json:"imageUrl" db:"image_url"`
	Likes     int       `json:"likes" db:"likes"`       // always equals the size of the post's like-set
	Comments  int       `json:"comments" db:"comments"` // no comment entities exist, stays 0
	Score     int       `json:"score" db:"score"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// Clone returns a deep copy of the post.
func (p *Post) Clone() *Post {
	if p == nil {
		return nil
	}
	c := *p
	if p.ImageURL != nil {
		url := *p.ImageURL
		c.ImageURL = &url
	}
	return &c
}

// PostWithUser is a feed entry: the post plus its author, which may be missing.
type PostWithUser struct {
	Post
	User *User `json:"user"`
}
