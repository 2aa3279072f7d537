// Package services implements the site's use cases on top of the repositories:
// registration and login, post CRUD, comments, like toggling and the admin user list.
package services

import (
	"context"
	"time"

	"github.com/cppla/microblog/events"
	"github.com/cppla/microblog/repository"
	"github.com/cppla/microblog/utils"
)

// Services bundles the use cases over one store.
type Services struct {
	Auth     *AuthService
	Posts    *PostService
	Comments *CommentService
	Likes    *LikeService
	Users    *UserService
}

// New wires every service to store. publisher may be nil.
func New(store *repository.Store, publisher events.Publisher, adminUsernames []string) *Services {
	if publisher == nil {
		publisher = events.Nop{}
	}
	b := base{store: store, events: publisher, now: time.Now}
	return &Services{
		Auth:     &AuthService{base: b, admins: adminUsernames},
		Posts:    &PostService{base: b},
		Comments: &CommentService{base: b},
		Likes:    &LikeService{base: b},
		Users:    &UserService{base: b},
	}
}

type base struct {
	store  *repository.Store
	events events.Publisher
	now    func() time.Time
}

// publish is best effort: a broker outage never fails the request that caused the event.
func (b base) publish(ctx context.Context, ev events.Event) {
	ev.At = b.now()
	if err := b.events.Publish(ctx, ev); err != nil {
		utils.Sugar.Warnw("publish event failed", "type", ev.Type, "error", err)
	}
}
