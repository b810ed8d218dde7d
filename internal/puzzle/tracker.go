// Package puzzle unlocks gallery pictures one piece at a time as work gets
// done.
package puzzle

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sandeepkv93/mooncove/internal/backend"
	"github.com/sandeepkv93/mooncove/internal/model"
)

const provisionWorkers = 4

var (
	ErrNotInProgress = errors.New("puzzle: item is not in progress")
	ErrItemFull      = errors.New("puzzle: every piece is already open")
	ErrNoActiveItem  = errors.New("puzzle: no item in progress")
	ErrItemNotFound  = errors.New("puzzle: item not found")
	ErrNoImages      = errors.New("puzzle: no images to provision")
)

type Options struct {
	Rand   *rand.Rand
	NewID  func() string
	Logger *zap.Logger
}

// Tracker owns the gallery of one user. Reveals are serialized so two
// unlocks never pick the same piece.
type Tracker struct {
	backend backend.Backend
	userID  string
	newID   func() string
	log     *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

func NewTracker(b backend.Backend, userID string, opts Options) *Tracker {
	if opts.Rand == nil {
		seed := uint64(time.Now().UnixNano())
		opts.Rand = rand.New(rand.NewPCG(seed, seed>>1))
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Tracker{
		backend: b,
		userID:  userID,
		newID:   opts.NewID,
		log:     opts.Logger.With(zap.String("user", userID)),
		rng:     opts.Rand,
	}
}

// Result describes what one reveal changed.
type Result struct {
	Item      model.GalleryItem
	Piece     int
	Completed bool
	// Promoted is the item that became active after Item completed.
	Promoted *model.GalleryItem
}

// Provision creates one item per image in listing order. The first item
// starts in progress and the rest wait.
func (t *Tracker) Provision(ctx context.Context, images []string) ([]model.GalleryItem, error) {
	if len(images) == 0 {
		return nil, ErrNoImages
	}
	items := make([]model.GalleryItem, 0, len(images))
	for i, image := range images {
		status := model.ItemStatusPending
		if i == 0 {
			status = model.ItemStatusInProgress
		}
		items = append(items, model.GalleryItem{
			ID:        t.newID(),
			Image:     image,
			OpenIndex: []int{},
			Status:    status,
			Order:     i,
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(provisionWorkers)
	for _, item := range items {
		g.Go(func() error {
			return t.backend.Write(gctx, backend.GalleryItemPath(t.userID, item.ID), item)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("provision gallery: %w", err)
	}
	t.log.Info("gallery provisioned", zap.Int("items", len(items)))
	return items, nil
}

// Items returns the gallery in provisioning order.
func (t *Tracker) Items(ctx context.Context) ([]model.GalleryItem, error) {
	docs, err := t.backend.List(ctx, backend.GalleryItemsPath(t.userID))
	if err != nil {
		return nil, fmt.Errorf("list gallery: %w", err)
	}
	items := make([]model.GalleryItem, 0, len(docs))
	for path, raw := range docs {
		var item model.GalleryItem
		if err := (backend.Snapshot{Path: path, Value: raw}).Decode(&item); err != nil {
			t.log.Warn("skip unreadable gallery item", zap.String("path", path), zap.Error(err))
			continue
		}
		items = append(items, item)
	}
	sortItems(items)
	return items, nil
}

func (t *Tracker) Item(ctx context.Context, itemID string) (model.GalleryItem, error) {
	var item model.GalleryItem
	err := t.backend.Read(ctx, backend.GalleryItemPath(t.userID, itemID), &item)
	if errors.Is(err, backend.ErrNotFound) {
		return model.GalleryItem{}, ErrItemNotFound
	}
	if err != nil {
		return model.GalleryItem{}, fmt.Errorf("read gallery item: %w", err)
	}
	return item, nil
}

// Reveal opens one random hidden piece of an in-progress item. Opening the
// last piece completes the item and activates the next pending one.
func (t *Tracker) Reveal(ctx context.Context, itemID string) (Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	item, err := t.Item(ctx, itemID)
	if err != nil {
		return Result{}, err
	}
	if item.Status != model.ItemStatusInProgress {
		return Result{Item: item}, fmt.Errorf("%w: %s is %s", ErrNotInProgress, item.ID, item.Status)
	}
	remaining := item.Remaining()
	if len(remaining) == 0 {
		return Result{Item: item}, ErrItemFull
	}

	piece := remaining[t.rng.IntN(len(remaining))]
	item.OpenIndex = append(item.OpenIndex, piece)
	res := Result{Item: item, Piece: piece}
	fields := map[string]any{"openIndex": item.OpenIndex}
	if item.IsFull() {
		item.Status = model.ItemStatusCompleted
		fields["status"] = item.Status
		res.Item = item
		res.Completed = true
	}
	if err := t.backend.Update(ctx, backend.GalleryItemPath(t.userID, item.ID), fields); err != nil {
		return res, fmt.Errorf("save reveal: %w", err)
	}
	t.log.Debug("piece revealed", zap.String("item", item.ID), zap.Int("piece", piece), zap.Int("open", len(item.OpenIndex)))

	if res.Completed {
		res.Promoted, err = t.promoteLocked(ctx)
		if err != nil {
			return res, err
		}
	}
	return res, nil
}

// RevealActive reveals a piece of the single item in progress.
func (t *Tracker) RevealActive(ctx context.Context) (Result, error) {
	items, err := t.Items(ctx)
	if err != nil {
		return Result{}, err
	}
	for _, item := range items {
		if item.Status == model.ItemStatusInProgress {
			return t.Reveal(ctx, item.ID)
		}
	}
	return Result{}, ErrNoActiveItem
}

// CheckCompletion marks an item completed once every piece is open. It is
// safe to call repeatedly; only the first call changes anything.
func (t *Tracker) CheckCompletion(ctx context.Context, itemID string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	item, err := t.Item(ctx, itemID)
	if err != nil {
		return false, err
	}
	if !item.IsFull() || item.Status == model.ItemStatusCompleted {
		return false, nil
	}
	err = t.backend.Update(ctx, backend.GalleryItemPath(t.userID, item.ID), map[string]any{
		"status": model.ItemStatusCompleted,
	})
	if err != nil {
		return false, fmt.Errorf("complete item: %w", err)
	}
	if _, err := t.promoteLocked(ctx); err != nil {
		return true, err
	}
	return true, nil
}

// promoteLocked activates the first pending item unless one is already in
// progress.
func (t *Tracker) promoteLocked(ctx context.Context) (*model.GalleryItem, error) {
	items, err := t.Items(ctx)
	if err != nil {
		return nil, err
	}
	var next *model.GalleryItem
	for i := range items {
		switch items[i].Status {
		case model.ItemStatusInProgress:
			return nil, nil
		case model.ItemStatusPending:
			if next == nil {
				next = &items[i]
			}
		}
	}
	if next == nil {
		t.log.Info("gallery finished")
		return nil, nil
	}
	next.Status = model.ItemStatusInProgress
	err = t.backend.Update(ctx, backend.GalleryItemPath(t.userID, next.ID), map[string]any{
		"status": next.Status,
	})
	if err != nil {
		return nil, fmt.Errorf("promote item: %w", err)
	}
	t.log.Info("gallery item activated", zap.String("item", next.ID), zap.Int("order", next.Order))
	return next, nil
}

// Watch checks every pushed gallery item for completion until ctx ends.
func (t *Tracker) Watch(ctx context.Context) error {
	sub, err := t.backend.Subscribe(ctx, backend.GalleryItemsPath(t.userID))
	if err != nil {
		return err
	}
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-sub.C():
			if !ok {
				return nil
			}
			var item model.GalleryItem
			if err := snap.Decode(&item); err != nil {
				continue
			}
			if !item.IsFull() || item.Status == model.ItemStatusCompleted {
				continue
			}
			if _, err := t.CheckCompletion(ctx, item.ID); err != nil {
				t.log.Warn("completion check failed", zap.String("item", item.ID), zap.Error(err))
			}
		}
	}
}

func sortItems(items []model.GalleryItem) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].Order != items[j].Order {
			return items[i].Order < items[j].Order
		}
		return items[i].ID < items[j].ID
	})
}
