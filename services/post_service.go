package services

import (
	"context"
	"errors"
	"strings"

	"github.com/cppla/microblog/events"
	"github.com/cppla/microblog/models"
	"github.com/cppla/microblog/repository"
)

// PostService implements post CRUD with authorship checks.
type PostService struct {
	base
}

// PostDetail is everything the post page shows.
type PostDetail struct {
	Post      models.Post
	Comments  []models.Comment
	LikeCount int64
	Liked     bool
}

// ListPosts returns every post, newest first.
func (s *PostService) ListPosts(ctx context.Context) ([]models.Post, error) {
	return s.store.Posts.List(ctx)
}

// CreatePost stores a post authored by the caller and stamped with the server clock.
func (s *PostService) CreatePost(ctx context.Context, title, content string, author *models.User) (*models.Post, error) {
	if author == nil {
		return nil, ErrUnauthenticated
	}
	title, content, err := cleanPost(title, content)
	if err != nil {
		return nil, err
	}
	post := &models.Post{
		Title:      title,
		Content:    content,
		DatePosted: s.now(),
		UserID:     author.ID,
	}
	if err := s.store.Posts.Create(ctx, post); err != nil {
		return nil, err
	}
	post.Author = *author

	s.publish(ctx, events.Event{Type: events.PostCreated, UserID: author.ID, PostID: post.ID})
	return post, nil
}

// GetPost loads one post with its author.
func (s *PostService) GetPost(ctx context.Context, id uint) (*models.Post, error) {
	post, err := s.store.Posts.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	return post, err
}

// GetPostDetail loads a post with comments, like count and whether viewer (may be nil) likes it.
func (s *PostService) GetPostDetail(ctx context.Context, id uint, viewer *models.User) (*PostDetail, error) {
	post, err := s.GetPost(ctx, id)
	if err != nil {
		return nil, err
	}
	comments, err := s.store.Comments.ListByPost(ctx, id)
	if err != nil {
		return nil, err
	}
	count, err := s.store.Likes.CountByPost(ctx, id)
	if err != nil {
		return nil, err
	}
	detail := &PostDetail{Post: *post, Comments: comments, LikeCount: count}
	if viewer != nil {
		_, err := s.store.Likes.Find(ctx, viewer.ID, id)
		switch {
		case err == nil:
			detail.Liked = true
		case !errors.Is(err, repository.ErrNotFound):
			return nil, err
		}
	}
	return detail, nil
}

// AuthorizeEdit returns the post when caller is its author.
func (s *PostService) AuthorizeEdit(ctx context.Context, id uint, caller *models.User) (*models.Post, error) {
	if caller == nil {
		return nil, ErrUnauthenticated
	}
	post, err := s.GetPost(ctx, id)
	if err != nil {
		return nil, err
	}
	if post.UserID != caller.ID {
		return nil, ErrForbidden
	}
	return post, nil
}

// EditPost overwrites title and content. date_posted and the author never change.
func (s *PostService) EditPost(ctx context.Context, id uint, title, content string, caller *models.User) (*models.Post, error) {
	if _, err := s.AuthorizeEdit(ctx, id, caller); err != nil {
		return nil, err
	}
	title, content, err := cleanPost(title, content)
	if err != nil {
		return nil, err
	}
	if err := s.store.Posts.UpdateContent(ctx, id, title, content); err != nil {
		return nil, err
	}
	post, err := s.GetPost(ctx, id)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.Event{Type: events.PostUpdated, UserID: caller.ID, PostID: id})
	return post, nil
}

// DeletePost removes a post together with its likes and comments in one transaction.
func (s *PostService) DeletePost(ctx context.Context, id uint, caller *models.User) error {
	if _, err := s.AuthorizeEdit(ctx, id, caller); err != nil {
		return err
	}
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		if err := tx.Likes.DeleteByPost(ctx, id); err != nil {
			return err
		}
		if err := tx.Comments.DeleteByPost(ctx, id); err != nil {
			return err
		}
		return tx.Posts.Delete(ctx, id)
	})
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	s.publish(ctx, events.Event{Type: events.PostDeleted, UserID: caller.ID, PostID: id})
	return nil
}

// ListPostsByUser returns the user and their posts, newest first.
func (s *PostService) ListPostsByUser(ctx context.Context, username string) (*models.User, []models.Post, error) {
	user, err := s.store.Users.FindByUsername(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	posts, err := s.store.Posts.ListByAuthor(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return user, posts, nil
}

func cleanPost(title, content string) (string, string, error) {
	title = strings.TrimSpace(title)
	if title == "" || strings.TrimSpace(content) == "" {
		return "", "", ErrValidationFailed
	}
	return title, content, nil
}
