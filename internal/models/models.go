package models

// Kind names a top-level entity collection.
type Kind string

const (
	KindUser Kind = "user"
	KindPost Kind = "post"
)
