package instagram

import (
	"context"
	"errors"
	"time"

	errs "igengage/pkg/errors"
	"igengage/pkg/models"
	"igengage/pkg/target"
)

// Done is returned by Iterator.Next once the stream is exhausted
var Done = errors.New("no more items")

// Iterator yields interactions one at a time, fetching pages lazily.
// After Next returns an error other than Done the iterator must be discarded.
type Iterator interface {
	Next(ctx context.Context) (models.Interaction, error)
}

// FetchPost fetches the post summary for a shortcode
func (c *Client) FetchPost(ctx context.Context, sc target.Shortcode) (*models.PostSummary, error) {
	mediaID, err := sc.MediaID()
	if err != nil {
		return nil, err
	}

	var resp MediaInfoResponse
	if err := c.getJSON(ctx, MediaInfoPath(mediaID), &resp); err != nil {
		return nil, err
	}
	if len(resp.Items) == 0 {
		return nil, errs.Newf(errs.KindUnexpected, "post %s not found", sc)
	}

	item := resp.Items[0]
	post := &models.PostSummary{
		Shortcode:       sc.String(),
		MediaID:         mediaID,
		OwnerUsername:   item.User.Username,
		OwnerProfileURL: GetUserProfileURL(item.User.Username),
		LikeCount:       item.LikeCount,
		CommentCount:    item.CommentCount,
		URL:             sc.PostURL(),
	}
	if item.TakenAt > 0 {
		post.TakenAt = time.Unix(item.TakenAt, 0).UTC()
	}
	if item.Caption != nil {
		post.Caption = item.Caption.Text
	}

	c.logger.DebugWithFields("Fetched post", map[string]interface{}{
		"shortcode": post.Shortcode,
		"owner":     post.OwnerUsername,
		"likes":     post.LikeCount,
		"comments":  post.CommentCount,
	})
	return post, nil
}

// Comments returns a fresh iterator over the post's comments, oldest page first
func (c *Client) Comments(post *models.PostSummary) Iterator {
	return &pageIterator{
		fetch: func(ctx context.Context, cursor string) ([]models.Interaction, string, error) {
			var resp CommentsResponse
			if err := c.getJSON(ctx, CommentsPath(post.MediaID, cursor, c.pageSize), &resp); err != nil {
				return nil, "", err
			}
			items := make([]models.Interaction, 0, len(resp.Comments))
			for _, cm := range resp.Comments {
				items = append(items, models.Interaction{
					Kind:       models.KindComment,
					Username:   cm.User.Username,
					ProfileURL: GetUserProfileURL(cm.User.Username),
					Text:       cm.Text,
				})
			}
			return items, resp.NextMinID, nil
		},
	}
}

// Likes returns a fresh iterator over the accounts that liked the post
func (c *Client) Likes(post *models.PostSummary) Iterator {
	return &pageIterator{
		fetch: func(ctx context.Context, cursor string) ([]models.Interaction, string, error) {
			var resp LikersResponse
			if err := c.getJSON(ctx, LikersPath(post.MediaID, cursor), &resp); err != nil {
				return nil, "", err
			}
			items := make([]models.Interaction, 0, len(resp.Users))
			for _, u := range resp.Users {
				items = append(items, models.Interaction{
					Kind:       models.KindLike,
					Username:   u.Username,
					ProfileURL: GetUserProfileURL(u.Username),
				})
			}
			return items, resp.NextMaxID, nil
		},
	}
}

type pageFetcher func(ctx context.Context, cursor string) ([]models.Interaction, string, error)

// pageIterator buffers one page and follows the cursor until it runs out
type pageIterator struct {
	fetch   pageFetcher
	buf     []models.Interaction
	cursor  string
	started bool
	done    bool
}

func (it *pageIterator) Next(ctx context.Context) (models.Interaction, error) {
	for len(it.buf) == 0 {
		if it.done {
			return models.Interaction{}, Done
		}
		if err := ctx.Err(); err != nil {
			return models.Interaction{}, err
		}

		items, next, err := it.fetch(ctx, it.cursor)
		if err != nil {
			return models.Interaction{}, err
		}

		// an empty cursor, or one that did not advance, ends the stream
		if next == "" || (it.started && next == it.cursor) {
			it.done = true
		}
		it.started = true
		it.cursor = next
		it.buf = items
	}

	item := it.buf[0]
	it.buf = it.buf[1:]
	return item, nil
}

// SliceIterator yields a fixed list
type SliceIterator struct {
	Items []models.Interaction
	// Err is returned once Items are drained, instead of Done, when set
	Err error
	pos int
}

func (s *SliceIterator) Next(ctx context.Context) (models.Interaction, error) {
	if err := ctx.Err(); err != nil {
		return models.Interaction{}, err
	}
	if s.pos < len(s.Items) {
		s.pos++
		return s.Items[s.pos-1], nil
	}
	if s.Err != nil {
		return models.Interaction{}, s.Err
	}
	return models.Interaction{}, Done
}

