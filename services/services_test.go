package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/pbkdf2"
	"gorm.io/gorm"

	"github.com/cppla/microblog/config"
	"github.com/cppla/microblog/events"
	"github.com/cppla/microblog/models"
	"github.com/cppla/microblog/repository"
	"github.com/cppla/microblog/utils"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := config.OpenDatabase(config.AppConfig{
		DatabaseURL: "sqlite://file:" + name + "?mode=memory&cache=shared",
		LogLevel:    "silent",
	})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	if _, err := config.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func setupServices(t *testing.T, admins ...string) (*Services, *events.Recorder, *gorm.DB) {
	t.Helper()
	db := setupTestDB(t)
	rec := &events.Recorder{}
	return New(repository.NewStore(db), rec, admins), rec, db
}

func mustRegister(t *testing.T, svc *Services, username string) *models.User {
	t.Helper()
	u, err := svc.Auth.Register(context.Background(), username, username+"@example.com", "secret123")
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return u
}

func TestRegisterAndLogin(t *testing.T) {
	svc, rec, _ := setupServices(t)
	ctx := context.Background()

	u := mustRegister(t, svc, "alice")
	if u.ID == 0 || u.IsAdmin {
		t.Fatalf("unexpected user: %+v", u)
	}
	if u.PasswordHash == "secret123" || !utils.CheckPassword(u.PasswordHash, "secret123") {
		t.Fatal("password must be stored hashed")
	}

	got, err := svc.Auth.Login(ctx, "alice@example.com", "secret123")
	if err != nil || got.ID != u.ID {
		t.Fatalf("Login = %+v, %v", got, err)
	}

	evs := rec.Events()
	if len(evs) != 1 || evs[0].Type != events.UserRegistered || evs[0].UserID != u.ID {
		t.Fatalf("events = %+v", evs)
	}
}

func TestRegisterDuplicates(t *testing.T) {
	svc, _, _ := setupServices(t)
	ctx := context.Background()
	first := mustRegister(t, svc, "alice")

	_, err := svc.Auth.Register(ctx, "someoneelse", "alice@example.com", "pw1234")
	var dup *DuplicateIdentityError
	if !errors.As(err, &dup) || dup.Field != FieldEmail || !errors.Is(err, ErrDuplicateIdentity) {
		t.Fatalf("duplicate email: err = %v", err)
	}

	_, err = svc.Auth.Register(ctx, "alice", "new@example.com", "pw1234")
	if !errors.As(err, &dup) || dup.Field != FieldUsername {
		t.Fatalf("duplicate username: err = %v", err)
	}

	// both collide: email is reported
	_, err = svc.Auth.Register(ctx, "alice", "alice@example.com", "pw1234")
	if !errors.As(err, &dup) || dup.Field != FieldEmail {
		t.Fatalf("double collision: err = %v", err)
	}

	// the first account is untouched
	got, err := svc.Auth.Login(ctx, "alice@example.com", "secret123")
	if err != nil || got.ID != first.ID {
		t.Fatalf("first account lost: %+v, %v", got, err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _ := setupServices(t)
	for _, name := range []string{"  ", " z", "a/b", "x?y", "has space", "toolong_toolong_toolong"} {
		if _, err := svc.Auth.Register(context.Background(), name, "x@example.com", "pw1234"); !errors.Is(err, ErrValidationFailed) {
			t.Fatalf("username %q: err = %v", name, err)
		}
	}
	if u, err := svc.Auth.Register(context.Background(), " jo_e-1 ", "x@example.com", "pw1234"); err != nil || u.Username != "jo_e-1" {
		t.Fatalf("padded username: %+v, %v", u, err)
	}
}

// racingUsers inserts rival just before the caller's own insert, so the
// pre-checks in Register pass and the unique index has the final say.
type racingUsers struct {
	repository.Users
	rival *models.User
}

func (r *racingUsers) Create(ctx context.Context, user *models.User) error {
	if r.rival != nil {
		rival := r.rival
		r.rival = nil
		if err := r.Users.Create(ctx, rival); err != nil {
			return err
		}
	}
	return r.Users.Create(ctx, user)
}

func TestRegisterLosesRace(t *testing.T) {
	cases := []struct {
		name  string
		rival models.User
		want  string
	}{
		{"email", models.User{Username: "other", Email: "alice@example.com", PasswordHash: "x"}, FieldEmail},
		{"username", models.User{Username: "alice", Email: "other@example.com", PasswordHash: "x"}, FieldUsername},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db := setupTestDB(t)
			store := repository.NewStore(db)
			rival := tc.rival
			store.Users = &racingUsers{Users: store.Users, rival: &rival}
			svc := New(store, nil, nil)

			_, err := svc.Auth.Register(context.Background(), "alice", "alice@example.com", "pw1234")
			var dup *DuplicateIdentityError
			if !errors.As(err, &dup) || dup.Field != tc.want {
				t.Fatalf("err = %v, want duplicate %v", err, tc.want)
			}
		})
	}
}

func TestLoginFailuresLookTheSame(t *testing.T) {
	svc, _, _ := setupServices(t)
	ctx := context.Background()
	mustRegister(t, svc, "alice")

	_, wrongPw := svc.Auth.Login(ctx, "alice@example.com", "nope")
	_, unknown := svc.Auth.Login(ctx, "ghost@example.com", "secret123")
	if !errors.Is(wrongPw, ErrInvalidCredentials) || !errors.Is(unknown, ErrInvalidCredentials) {
		t.Fatalf("wrong password = %v, unknown email = %v", wrongPw, unknown)
	}
	if wrongPw.Error() != unknown.Error() {
		t.Fatalf("messages differ: %q vs %q", wrongPw, unknown)
	}
}

func TestLoginLegacyHash(t *testing.T) {
	svc, _, db := setupServices(t)
	digest := pbkdf2.Key([]byte("password"), []byte("NaCl4salt"), 1000, 32, sha256.New)
	legacy := "pbkdf2:sha256:1000$NaCl4salt$" + hex.EncodeToString(digest)
	u := models.User{Username: "old", Email: "old@example.com", PasswordHash: legacy}
	if err := db.Create(&u).Error; err != nil {
		t.Fatal(err)
	}

	got, err := svc.Auth.Login(context.Background(), "old@example.com", "password")
	if err != nil || got.ID != u.ID {
		t.Fatalf("legacy login = %+v, %v", got, err)
	}
	if _, err := svc.Auth.Login(context.Background(), "old@example.com", "not-it"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v", err)
	}
}

func TestAdminBootstrap(t *testing.T) {
	svc, _, db := setupServices(t, "root")
	ctx := context.Background()

	admin := mustRegister(t, svc, "root")
	if !admin.IsAdmin {
		t.Fatal("configured admin should be admin at registration")
	}

	// an account that predates the config entry is promoted at startup
	pre := models.User{Username: "later", Email: "later@example.com", PasswordHash: "x"}
	if err := db.Create(&pre).Error; err != nil {
		t.Fatal(err)
	}
	svc.Auth.admins = append(svc.Auth.admins, "later")
	n, err := svc.Auth.PromoteAdmins(ctx)
	if err != nil || n != 1 {
		t.Fatalf("PromoteAdmins = %d, %v", n, err)
	}
	got, _ := svc.Auth.CurrentUser(ctx, pre.ID)
	if !got.IsAdmin {
		t.Fatal("existing account not promoted")
	}
}

func TestCurrentUser(t *testing.T) {
	svc, _, _ := setupServices(t)
	ctx := context.Background()
	u := mustRegister(t, svc, "alice")

	got, err := svc.Auth.CurrentUser(ctx, u.ID)
	if err != nil || got.Username != "alice" {
		t.Fatalf("CurrentUser = %+v, %v", got, err)
	}
	if _, err := svc.Auth.CurrentUser(ctx, 999); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("unknown id: err = %v", err)
	}
	if _, err := svc.Auth.CurrentUser(ctx, 0); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("zero id: err = %v", err)
	}
}

func TestCreateAndGetPost(t *testing.T) {
	svc, rec, _ := setupServices(t)
	ctx := context.Background()
	alice := mustRegister(t, svc, "alice")
	now := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	svc.Posts.now = func() time.Time { return now }

	p, err := svc.Posts.CreatePost(ctx, "Hello", "World", alice)
	if err != nil {
		t.Fatal(err)
	}
	got, err := svc.Posts.GetPost(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Hello" || got.Content != "World" || got.UserID != alice.ID || got.Author.Username != "alice" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if !got.DatePosted.Equal(now) {
		t.Fatalf("DatePosted = %v, want %v", got.DatePosted, now)
	}

	if _, err := svc.Posts.GetPost(ctx, p.ID+100); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing post: err = %v", err)
	}
	if _, err := svc.Posts.CreatePost(ctx, "t", "c", nil); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("anonymous create: err = %v", err)
	}
	if _, err := svc.Posts.CreatePost(ctx, "   ", "c", alice); !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("blank title: err = %v", err)
	}

	last := rec.Events()[len(rec.Events())-1]
	if last.Type != events.PostCreated || last.PostID != p.ID {
		t.Fatalf("last event = %+v", last)
	}
}

func TestEditAndDeleteRequireAuthor(t *testing.T) {
	svc, _, _ := setupServices(t)
	ctx := context.Background()
	alice := mustRegister(t, svc, "alice")
	bob := mustRegister(t, svc, "bob")
	p, err := svc.Posts.CreatePost(ctx, "Mine", "alice only", alice)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Posts.EditPost(ctx, p.ID, "Hijacked", "bob was here", bob); !errors.Is(err, ErrForbidden) {
		t.Fatalf("edit by non-author: err = %v", err)
	}
	if err := svc.Posts.DeletePost(ctx, p.ID, bob); !errors.Is(err, ErrForbidden) {
		t.Fatalf("delete by non-author: err = %v", err)
	}
	got, err := svc.Posts.GetPost(ctx, p.ID)
	if err != nil || got.Title != "Mine" || got.Content != "alice only" {
		t.Fatalf("post mutated by non-author: %+v, %v", got, err)
	}

	if _, err := svc.Posts.EditPost(ctx, p.ID+1, "x", "y", alice); !errors.Is(err, ErrNotFound) {
		t.Fatalf("edit missing post: err = %v", err)
	}
	if _, err := svc.Posts.EditPost(ctx, p.ID, "x", "y", nil); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("anonymous edit: err = %v", err)
	}

	edited, err := svc.Posts.EditPost(ctx, p.ID, "Mine v2", "updated", alice)
	if err != nil {
		t.Fatal(err)
	}
	if edited.Title != "Mine v2" || edited.UserID != alice.ID || !edited.DatePosted.Equal(got.DatePosted) {
		t.Fatalf("edit result = %+v", edited)
	}
}

func TestToggleLikeTwice(t *testing.T) {
	svc, rec, _ := setupServices(t)
	ctx := context.Background()
	alice := mustRegister(t, svc, "alice")
	bob := mustRegister(t, svc, "bob")
	p, _ := svc.Posts.CreatePost(ctx, "Like me", "please", alice)

	state, err := svc.Likes.ToggleLike(ctx, p.ID, bob)
	if err != nil || state != Liked {
		t.Fatalf("first toggle = %v, %v", state, err)
	}
	detail, _ := svc.Posts.GetPostDetail(ctx, p.ID, bob)
	if detail.LikeCount != 1 || !detail.Liked {
		t.Fatalf("after like: count=%d liked=%v", detail.LikeCount, detail.Liked)
	}

	state, err = svc.Likes.ToggleLike(ctx, p.ID, bob)
	if err != nil || state != Unliked {
		t.Fatalf("second toggle = %v, %v", state, err)
	}
	detail, _ = svc.Posts.GetPostDetail(ctx, p.ID, bob)
	if detail.LikeCount != 0 || detail.Liked {
		t.Fatalf("after unlike: count=%d liked=%v", detail.LikeCount, detail.Liked)
	}

	if _, err := svc.Likes.ToggleLike(ctx, p.ID+1, bob); !errors.Is(err, ErrNotFound) {
		t.Fatalf("like missing post: err = %v", err)
	}
	if _, err := svc.Likes.ToggleLike(ctx, p.ID, nil); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("anonymous like: err = %v", err)
	}

	var types []string
	for _, ev := range rec.Events() {
		if ev.Type == events.PostLiked || ev.Type == events.PostUnliked {
			types = append(types, ev.Type)
		}
	}
	if strings.Join(types, ",") != events.PostLiked+","+events.PostUnliked {
		t.Fatalf("like events = %v", types)
	}
}

func TestToggleLikeConcurrentInsert(t *testing.T) {
	svc, rec, db := setupServices(t)
	ctx := context.Background()
	alice := mustRegister(t, svc, "alice")
	bob := mustRegister(t, svc, "bob")
	p, _ := svc.Posts.CreatePost(ctx, "Popular", "race me", alice)

	// another request inserts the same like between our lookup and our insert
	fired := false
	err := db.Callback().Create().Before("gorm:create").Register("test:concurrent_like", func(tx *gorm.DB) {
		like, ok := tx.Statement.Dest.(*models.Like)
		if !ok || fired {
			return
		}
		fired = true
		tx.Session(&gorm.Session{NewDB: true}).Exec(
			"INSERT INTO likes (user_id, post_id, created_at) VALUES (?, ?, ?)", like.UserID, like.PostID, time.Now())
	})
	if err != nil {
		t.Fatal(err)
	}
	before := len(rec.Events())

	state, err := svc.Likes.ToggleLike(ctx, p.ID, bob)
	if err != nil || state != Liked {
		t.Fatalf("ToggleLike = %v, %v", state, err)
	}
	if !fired {
		t.Fatal("concurrent insert never happened")
	}
	if len(rec.Events()) != before {
		t.Fatal("no event expected for a like another request recorded")
	}
}

func TestAddComment(t *testing.T) {
	svc, _, _ := setupServices(t)
	ctx := context.Background()
	alice := mustRegister(t, svc, "alice")
	bob := mustRegister(t, svc, "bob")
	p, _ := svc.Posts.CreatePost(ctx, "Discuss", "thoughts?", alice)

	if _, err := svc.Comments.AddComment(ctx, p.ID, "first!", bob); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Comments.AddComment(ctx, p.ID, "agreed", alice); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Comments.AddComment(ctx, p.ID, "   ", bob); !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("blank comment: err = %v", err)
	}
	if _, err := svc.Comments.AddComment(ctx, p.ID+1, "hello?", bob); !errors.Is(err, ErrNotFound) {
		t.Fatalf("comment on missing post: err = %v", err)
	}
	// a missing post wins over blank content
	if _, err := svc.Comments.AddComment(ctx, p.ID+1, "", bob); !errors.Is(err, ErrNotFound) {
		t.Fatalf("blank comment on missing post: err = %v", err)
	}

	detail, err := svc.Posts.GetPostDetail(ctx, p.ID, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(detail.Comments) != 2 || detail.Comments[0].Content != "first!" || detail.Comments[0].User.Username != "bob" {
		t.Fatalf("comments = %+v", detail.Comments)
	}
	if detail.Liked {
		t.Fatal("anonymous viewer cannot like")
	}
}

func TestDeletePostCascades(t *testing.T) {
	svc, _, db := setupServices(t)
	ctx := context.Background()
	alice := mustRegister(t, svc, "alice")
	bob := mustRegister(t, svc, "bob")
	p, _ := svc.Posts.CreatePost(ctx, "Doomed", "soon gone", alice)
	keep, _ := svc.Posts.CreatePost(ctx, "Keeper", "stays", alice)

	svc.Comments.AddComment(ctx, p.ID, "bye", bob)
	svc.Comments.AddComment(ctx, keep.ID, "hi", bob)
	svc.Likes.ToggleLike(ctx, p.ID, bob)
	svc.Likes.ToggleLike(ctx, keep.ID, bob)

	if err := svc.Posts.DeletePost(ctx, p.ID, alice); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Posts.GetPost(ctx, p.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("post still there: err = %v", err)
	}

	var comments, likes int64
	db.Model(&models.Comment{}).Where("post_id = ?", p.ID).Count(&comments)
	db.Model(&models.Like{}).Where("post_id = ?", p.ID).Count(&likes)
	if comments != 0 || likes != 0 {
		t.Fatalf("dependents left behind: comments=%d likes=%d", comments, likes)
	}

	detail, _ := svc.Posts.GetPostDetail(ctx, keep.ID, bob)
	if len(detail.Comments) != 1 || detail.LikeCount != 1 {
		t.Fatalf("other post affected: %+v", detail)
	}

	if err := svc.Posts.DeletePost(ctx, p.ID, alice); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: err = %v", err)
	}
}

func TestListPostsByUser(t *testing.T) {
	svc, _, _ := setupServices(t)
	ctx := context.Background()
	alice := mustRegister(t, svc, "alice")
	bob := mustRegister(t, svc, "bob")

	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.Posts.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	svc.Posts.CreatePost(ctx, "a1", "x", alice)
	svc.Posts.CreatePost(ctx, "b1", "x", bob)
	svc.Posts.CreatePost(ctx, "a2", "x", alice)

	user, posts, err := svc.Posts.ListPostsByUser(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if user.ID != alice.ID || len(posts) != 2 || posts[0].Title != "a2" || posts[1].Title != "a1" {
		t.Fatalf("ListPostsByUser = %+v, %+v", user, posts)
	}
	for _, p := range posts {
		if p.UserID != alice.ID {
			t.Fatalf("foreign post in list: %+v", p)
		}
	}

	if _, _, err := svc.Posts.ListPostsByUser(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown user: err = %v", err)
	}

	all, _ := svc.Posts.ListPosts(ctx)
	if len(all) != 3 || all[0].Title != "a2" {
		t.Fatalf("ListPosts = %+v", all)
	}
}

func TestListUsersRequiresAdmin(t *testing.T) {
	svc, _, _ := setupServices(t, "root")
	ctx := context.Background()
	root := mustRegister(t, svc, "root")
	alice := mustRegister(t, svc, "alice")

	if _, err := svc.Users.ListUsers(ctx, alice); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-admin: err = %v", err)
	}
	if _, err := svc.Users.ListUsers(ctx, nil); !errors.Is(err, ErrForbidden) {
		t.Fatalf("anonymous: err = %v", err)
	}
	users, err := svc.Users.ListUsers(ctx, root)
	if err != nil || len(users) != 2 {
		t.Fatalf("admin ListUsers = %d users, %v", len(users), err)
	}
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, events.Event) error { return errors.New("broker down") }
func (failingPublisher) Close() error                                { return nil }

func TestPublishFailureDoesNotFailRequest(t *testing.T) {
	svc := New(repository.NewStore(setupTestDB(t)), failingPublisher{}, nil)
	if _, err := svc.Auth.Register(context.Background(), "alice", "alice@example.com", "secret123"); err != nil {
		t.Fatalf("Register with a failing broker: %v", err)
	}
}
