package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cppla/microblog/middleware"
	"github.com/cppla/microblog/services"
	"github.com/cppla/microblog/session"
)

// PostController manages posts and the comments and likes hanging off them.
type PostController struct {
	pages
	posts    *services.PostService
	comments *services.CommentService
	likes    *services.LikeService
}

// NewPostController creates a new PostController instance.
func NewPostController(svc *services.Services, sessions *session.Manager) *PostController {
	return &PostController{
		pages:    pages{sessions: sessions},
		posts:    svc.Posts,
		comments: svc.Comments,
		likes:    svc.Likes,
	}
}

func postURL(id uint) string {
	return "/post/" + strconv.FormatUint(uint64(id), 10)
}

// Home lists every post.
func (p *PostController) Home(ctx *gin.Context) {
	posts, err := p.posts.ListPosts(ctx.Request.Context())
	if err != nil {
		p.serverError(ctx, err)
		return
	}
	p.render(ctx, http.StatusOK, "home.html", gin.H{"Title": "Home", "Posts": posts})
}

// NewPostPage shows the empty post form.
func (p *PostController) NewPostPage(ctx *gin.Context) {
	p.render(ctx, http.StatusOK, "create_post.html", gin.H{"Title": "New Post", "Form": postForm{}})
}

// CreatePost publishes a post authored by the current user.
func (p *PostController) CreatePost(ctx *gin.Context) {
	var form postForm
	if err := ctx.ShouldBind(&form); err != nil {
		p.render(ctx, http.StatusOK, "create_post.html", gin.H{"Title": "New Post", "Form": form, "Errors": fieldErrors(err)})
		return
	}

	_, err := p.posts.CreatePost(ctx.Request.Context(), form.Title, form.Content, middleware.CurrentUser(ctx))
	if errors.Is(err, services.ErrValidationFailed) {
		p.render(ctx, http.StatusOK, "create_post.html", gin.H{"Title": "New Post", "Form": form,
			"Errors": map[string]string{"Form": "Title and content cannot be blank."}})
		return
	}
	if err != nil {
		p.fail(ctx, err)
		return
	}
	p.redirect(ctx, "/", session.CategorySuccess, "Your post has been created!")
}

// PostDetail shows a post with its comments and like count.
func (p *PostController) PostDetail(ctx *gin.Context) {
	id, ok := parseID(ctx)
	if !ok {
		p.notFound(ctx)
		return
	}
	user := middleware.CurrentUser(ctx)
	detail, err := p.posts.GetPostDetail(ctx.Request.Context(), id, user)
	if err != nil {
		p.fail(ctx, err)
		return
	}
	p.render(ctx, http.StatusOK, "post_detail.html", gin.H{
		"Title":   detail.Post.Title,
		"Detail":  detail,
		"IsOwner": user != nil && user.ID == detail.Post.UserID,
		"Form":    commentForm{},
	})
}

// EditPostPage shows the post form pre-filled for its author.
func (p *PostController) EditPostPage(ctx *gin.Context) {
	id, ok := parseID(ctx)
	if !ok {
		p.notFound(ctx)
		return
	}
	post, err := p.posts.AuthorizeEdit(ctx.Request.Context(), id, middleware.CurrentUser(ctx))
	if err != nil {
		p.fail(ctx, err)
		return
	}
	p.render(ctx, http.StatusOK, "edit_post.html", gin.H{
		"Title": "Edit Post",
		"Post":  post,
		"Form":  postForm{Title: post.Title, Content: post.Content},
	})
}

// EditPost saves the new title and content.
func (p *PostController) EditPost(ctx *gin.Context) {
	id, ok := parseID(ctx)
	if !ok {
		p.notFound(ctx)
		return
	}
	reqCtx := ctx.Request.Context()
	user := middleware.CurrentUser(ctx)

	var form postForm
	if err := ctx.ShouldBind(&form); err != nil {
		post, aerr := p.posts.AuthorizeEdit(reqCtx, id, user)
		if aerr != nil {
			p.fail(ctx, aerr)
			return
		}
		p.render(ctx, http.StatusOK, "edit_post.html", gin.H{"Title": "Edit Post", "Post": post, "Form": form, "Errors": fieldErrors(err)})
		return
	}

	post, err := p.posts.EditPost(reqCtx, id, form.Title, form.Content, user)
	if errors.Is(err, services.ErrValidationFailed) {
		post, aerr := p.posts.AuthorizeEdit(reqCtx, id, user)
		if aerr != nil {
			p.fail(ctx, aerr)
			return
		}
		p.render(ctx, http.StatusOK, "edit_post.html", gin.H{"Title": "Edit Post", "Post": post, "Form": form,
			"Errors": map[string]string{"Form": "Title and content cannot be blank."}})
		return
	}
	if err != nil {
		p.fail(ctx, err)
		return
	}
	p.redirect(ctx, postURL(post.ID), session.CategorySuccess, "Your post has been updated!")
}

// DeletePost removes a post with its comments and likes.
func (p *PostController) DeletePost(ctx *gin.Context) {
	id, ok := parseID(ctx)
	if !ok {
		p.notFound(ctx)
		return
	}
	if err := p.posts.DeletePost(ctx.Request.Context(), id, middleware.CurrentUser(ctx)); err != nil {
		p.fail(ctx, err)
		return
	}
	p.redirect(ctx, "/", session.CategoryInfo, "Your post has been deleted!")
}

// AddComment attaches the submitted comment and returns to the post.
func (p *PostController) AddComment(ctx *gin.Context) {
	id, ok := parseID(ctx)
	if !ok {
		p.notFound(ctx)
		return
	}
	reqCtx := ctx.Request.Context()

	var form commentForm
	if err := ctx.ShouldBind(&form); err != nil {
		// a missing post still answers 404 before the form is judged
		if _, perr := p.posts.GetPost(reqCtx, id); perr != nil {
			p.fail(ctx, perr)
			return
		}
		p.redirect(ctx, postURL(id), session.CategoryDanger, "Failed to add comment. Please try again.")
		return
	}

	_, err := p.comments.AddComment(reqCtx, id, form.Content, middleware.CurrentUser(ctx))
	if errors.Is(err, services.ErrValidationFailed) {
		p.redirect(ctx, postURL(id), session.CategoryDanger, "Failed to add comment. Please try again.")
		return
	}
	if err != nil {
		p.fail(ctx, err)
		return
	}
	p.redirect(ctx, postURL(id), session.CategorySuccess, "Your comment has been added!")
}

// ToggleLike likes or unlikes the post for the current user.
func (p *PostController) ToggleLike(ctx *gin.Context) {
	id, ok := parseID(ctx)
	if !ok {
		p.notFound(ctx)
		return
	}
	state, err := p.likes.ToggleLike(ctx.Request.Context(), id, middleware.CurrentUser(ctx))
	if err != nil {
		p.fail(ctx, err)
		return
	}
	if state == services.Liked {
		p.redirect(ctx, postURL(id), session.CategorySuccess, "You liked the post!")
		return
	}
	p.redirect(ctx, postURL(id), session.CategoryInfo, "You unliked the post.")
}

// UserProfile shows one user's posts, newest first.
func (p *PostController) UserProfile(ctx *gin.Context) {
	user, posts, err := p.posts.ListPostsByUser(ctx.Request.Context(), ctx.Param("username"))
	if err != nil {
		p.fail(ctx, err)
		return
	}
	p.render(ctx, http.StatusOK, "user_profile.html", gin.H{"Title": user.Username, "User": user, "Posts": posts})
}
