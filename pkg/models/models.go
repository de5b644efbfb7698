package models

import (
	"fmt"
	"strconv"
	"time"
)

// Kind tags an interaction as a like or a comment
type Kind string

const (
	KindLike    Kind = "like"
	KindComment Kind = "comment"
)

// Interaction is one engagement event on a post
type Interaction struct {
	Kind       Kind   `json:"type"`
	Username   string `json:"username"`
	ProfileURL string `json:"profile_url"`
	// Text is the comment body; empty for likes
	Text string `json:"comment,omitempty"`
}

// PostSummary is the immutable snapshot of a post fetched once per run
type PostSummary struct {
	Shortcode       string    `json:"shortcode"`
	MediaID         string    `json:"media_id"`
	OwnerUsername   string    `json:"owner_username"`
	OwnerProfileURL string    `json:"owner_profile_url"`
	TakenAt         time.Time `json:"taken_at"`
	Caption         string    `json:"caption"`
	LikeCount       int       `json:"likes_count"`
	CommentCount    int       `json:"comments_count"`
	URL             string    `json:"url"`
}

// Limit is a soft upper bound on collected items
type Limit int

// Unbounded is the sentinel for "collect until the source is exhausted".
// It is distinct from every positive cap.
const Unbounded Limit = -1

// LimitFromInput maps user input onto a Limit; zero or negative means unbounded
func LimitFromInput(n int) Limit {
	if n <= 0 {
		return Unbounded
	}
	return Limit(n)
}

// IsUnbounded reports whether l is the unbounded sentinel
func (l Limit) IsUnbounded() bool {
	return l == Unbounded
}

// Reached reports whether n collected items satisfy the cap
func (l Limit) Reached(n int) bool {
	if l.IsUnbounded() {
		return false
	}
	return n >= int(l)
}

func (l Limit) String() string {
	if l.IsUnbounded() {
		return "all"
	}
	return strconv.Itoa(int(l))
}

// Caps bounds each retrieval phase
type Caps struct {
	MaxLikes    Limit
	MaxComments Limit
}

// DefaultCaps returns the interactive defaults
func DefaultCaps() Caps {
	return Caps{MaxLikes: 100, MaxComments: 100}
}

// Validate rejects caps that are neither positive nor the unbounded sentinel
func (c Caps) Validate() error {
	for name, l := range map[string]Limit{"max_likes": c.MaxLikes, "max_comments": c.MaxComments} {
		if l != Unbounded && l <= 0 {
			return fmt.Errorf("%s must be positive or unbounded, got %d", name, int(l))
		}
	}
	return nil
}

// CountKind counts interactions of the given kind
func CountKind(items []Interaction, kind Kind) int {
	n := 0
	for _, it := range items {
		if it.Kind == kind {
			n++
		}
	}
	return n
}

// Usernames returns the usernames in retrieval order, duplicates included
func Usernames(items []Interaction) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Username)
	}
	return out
}
