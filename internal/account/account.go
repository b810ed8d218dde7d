// Package account signs users up, provisions their gallery and edits their
// profile.
package account

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sandeepkv93/mooncove/internal/backend"
	"github.com/sandeepkv93/mooncove/internal/model"
	"github.com/sandeepkv93/mooncove/internal/puzzle"
)

var avatarExt = regexp.MustCompile(`^\.[a-z0-9]{1,8}$`)

// GalleryPrefix is the blob folder holding the puzzle pictures.
const GalleryPrefix = "gallery"

var (
	ErrUserNotFound = errors.New("account: user not found, please sign in again")
	ErrEmptyAvatar  = errors.New("account: avatar image is empty")
	ErrAvatarExt    = errors.New("account: invalid avatar extension")
)

type SignUp struct {
	Username string
	Email    string
	Gender   string
	Bio      string
}

// ProfileUpdate holds optional profile edits. Nil fields are left alone.
type ProfileUpdate struct {
	Username *string
	Gender   *string
	Bio      *string
}

type Options struct {
	NewID      func() string
	Logger     *zap.Logger
	NewTracker func(userID string) *puzzle.Tracker
}

type Service struct {
	backend    backend.Backend
	blobs      backend.BlobStore
	newID      func() string
	log        *zap.Logger
	newTracker func(userID string) *puzzle.Tracker
}

func NewService(b backend.Backend, blobs backend.BlobStore, opts Options) *Service {
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.NewTracker == nil {
		logger := opts.Logger
		opts.NewTracker = func(userID string) *puzzle.Tracker {
			return puzzle.NewTracker(b, userID, puzzle.Options{Logger: logger})
		}
	}
	return &Service{
		backend:    b,
		blobs:      blobs,
		newID:      opts.NewID,
		log:        opts.Logger,
		newTracker: opts.NewTracker,
	}
}

// SignUp stores a new user and gives them one puzzle per gallery image.
func (s *Service) SignUp(ctx context.Context, req SignUp) (model.User, error) {
	user := model.User{
		ID:       s.newID(),
		Username: strings.TrimSpace(req.Username),
		Email:    strings.TrimSpace(req.Email),
		Gender:   canonicalGender(req.Gender),
		Bio:      strings.TrimSpace(req.Bio),
	}
	if err := user.Validate(); err != nil {
		return model.User{}, err
	}
	if err := s.backend.Write(ctx, backend.UserPath(user.ID), user); err != nil {
		return model.User{}, fmt.Errorf("save user: %w", err)
	}

	images, err := s.blobs.List(ctx, GalleryPrefix)
	if err != nil {
		return user, fmt.Errorf("list gallery images: %w", err)
	}
	if len(images) == 0 {
		s.log.Warn("no gallery images to provision", zap.String("user", user.ID))
		return user, nil
	}
	if _, err := s.newTracker(user.ID).Provision(ctx, images); err != nil {
		return user, err
	}
	s.log.Info("user signed up", zap.String("user", user.ID), zap.Int("puzzles", len(images)))
	return user, nil
}

func (s *Service) Get(ctx context.Context, userID string) (model.User, error) {
	if strings.TrimSpace(userID) == "" {
		return model.User{}, ErrUserNotFound
	}
	var user model.User
	err := s.backend.Read(ctx, backend.UserPath(userID), &user)
	if errors.Is(err, backend.ErrNotFound) {
		return model.User{}, ErrUserNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("read user: %w", err)
	}
	return user, nil
}

func (s *Service) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (model.User, error) {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return model.User{}, err
	}
	fields := make(map[string]any)
	if upd.Username != nil {
		user.Username = strings.TrimSpace(*upd.Username)
		fields["username"] = user.Username
	}
	if upd.Gender != nil {
		user.Gender = canonicalGender(*upd.Gender)
		fields["gender"] = user.Gender
	}
	if upd.Bio != nil {
		user.Bio = strings.TrimSpace(*upd.Bio)
		fields["bio"] = user.Bio
	}
	if err := user.Validate(); err != nil {
		return model.User{}, err
	}
	if len(fields) == 0 {
		return user, nil
	}
	if err := s.backend.Update(ctx, backend.UserPath(userID), fields); err != nil {
		return user, fmt.Errorf("update profile: %w", err)
	}
	return user, nil
}

// UploadAvatar stores the picture and points the profile at it. ext is the
// file extension such as ".png".
func (s *Service) UploadAvatar(ctx context.Context, userID string, data []byte, ext string) (model.User, error) {
	if len(data) == 0 {
		return model.User{}, ErrEmptyAvatar
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	ext = strings.ToLower(ext)
	if ext != "" && !avatarExt.MatchString(ext) {
		return model.User{}, fmt.Errorf("%w: %q", ErrAvatarExt, ext)
	}
	user, err := s.Get(ctx, userID)
	if err != nil {
		return model.User{}, err
	}
	url, err := s.blobs.Upload(ctx, path.Join("avatars", userID+ext), data)
	if err != nil {
		return user, fmt.Errorf("upload avatar: %w", err)
	}
	user.Profile = url
	if err := s.backend.Update(ctx, backend.UserPath(userID), map[string]any{"profile": url}); err != nil {
		return user, fmt.Errorf("update profile: %w", err)
	}
	return user, nil
}

func canonicalGender(raw string) string {
	raw = strings.TrimSpace(raw)
	for _, g := range model.Genders {
		if strings.EqualFold(g, raw) {
			return g
		}
	}
	return raw
}
