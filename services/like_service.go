package services

import (
	"context"
	"errors"

	"github.com/cppla/microblog/events"
	"github.com/cppla/microblog/models"
	"github.com/cppla/microblog/repository"
)

// LikeState is the outcome of a toggle.
type LikeState int

const (
	Unliked LikeState = iota
	Liked
)

func (s LikeState) String() string {
	if s == Liked {
		return "liked"
	}
	return "unliked"
}

// LikeService toggles likes.
type LikeService struct {
	base
}

// ToggleLike deletes the caller's like on the post if there is one, else inserts it.
func (s *LikeService) ToggleLike(ctx context.Context, postID uint, caller *models.User) (LikeState, error) {
	if caller == nil {
		return Unliked, ErrUnauthenticated
	}

	var state LikeState
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		if _, err := tx.Posts.GetByID(ctx, postID); err != nil {
			return err
		}
		like, err := tx.Likes.Find(ctx, caller.ID, postID)
		switch {
		case err == nil:
			state = Unliked
			return tx.Likes.Delete(ctx, like.ID)
		case errors.Is(err, repository.ErrNotFound):
			state = Liked
			return tx.Likes.Create(ctx, &models.Like{UserID: caller.ID, PostID: postID})
		default:
			return err
		}
	})
	switch {
	case errors.Is(err, repository.ErrDuplicate):
		// a concurrent toggle inserted the same row first; the post is liked either way
		return Liked, nil
	case errors.Is(err, repository.ErrNotFound):
		return Unliked, ErrNotFound
	case err != nil:
		return Unliked, err
	}

	evType := events.PostUnliked
	if state == Liked {
		evType = events.PostLiked
	}
	s.publish(ctx, events.Event{Type: evType, UserID: caller.ID, PostID: postID})
	return state, nil
}
