package services

import (
	"context"
	"errors"
	"strings"

	"github.com/cppla/microblog/events"
	"github.com/cppla/microblog/models"
	"github.com/cppla/microblog/repository"
)

// CommentService adds comments to posts. Comments cannot be edited or deleted.
type CommentService struct {
	base
}

// AddComment attaches a comment by caller to an existing post. Nothing is written
// when the content is blank.
func (s *CommentService) AddComment(ctx context.Context, postID uint, content string, caller *models.User) (*models.Comment, error) {
	if caller == nil {
		return nil, ErrUnauthenticated
	}
	if _, err := s.store.Posts.GetByID(ctx, postID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, ErrValidationFailed
	}
	comment := &models.Comment{
		Content: content,
		UserID:  caller.ID,
		PostID:  postID,
	}
	if err := s.store.Comments.Create(ctx, comment); err != nil {
		return nil, err
	}
	comment.User = *caller

	s.publish(ctx, events.Event{Type: events.CommentAdded, UserID: caller.ID, PostID: postID, CommentID: comment.ID})
	return comment, nil
}
