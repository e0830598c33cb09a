package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"silk-catalog/internal/domain"
	"silk-catalog/internal/media"
	"silk-catalog/internal/repository"
	"silk-catalog/internal/storage"

	"go.uber.org/zap"
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrProductNotFound = errors.New("product not found")
)

const (
	DefaultStars = 5
	MinStars     = 3
	MaxStars     = 5
)

// Listing sources accepted by List
const (
	SourceMain     = "main"
	SourceTrash    = "trash"
	SourceUnfilled = "unfilled"
)

var idSuffix = regexp.MustCompile(`(\d+)$`)

// MediaInput is either a reference to an earlier upload or inline bytes
// submitted with the form
type MediaInput struct {
	Ref      string
	Data     []byte
	Filename string
	Kind     media.Kind
	Rotation int
}

func (m *MediaInput) isEmpty() bool {
	return m == nil || (len(m.Data) == 0 && strings.TrimSpace(m.Ref) == "")
}

// ProductInput carries the operator's form submission
type ProductInput struct {
	ID            string
	Name          string
	Category      string
	Fabric        string
	Color         string
	Price         domain.Price
	DiscountPrice *domain.Price
	Description   string
	Stars         int
	Stock         string
	StockCount    int
	Main          *MediaInput
	Gallery       []MediaInput
}

// Result is the stored record plus any gallery items that were dropped
type Result struct {
	Product  domain.Product `json:"product"`
	Warnings []string       `json:"warnings,omitempty"`
}

// Options configures ID assignment. A nil Logger discards output.
type Options struct {
	IDPrefix string
	IDFloor  int
	Logger   *zap.Logger
}

// CatalogService defines the record lifecycle operations
type CatalogService interface {
	Stage(ctx context.Context, data []byte, filename string, rotation int) (domain.MediaRef, error)
	GetDraft(ctx context.Context) (domain.Draft, error)
	SaveDraft(ctx context.Context, draft domain.Draft) error
	ClearDraft(ctx context.Context) error
	SaveIncomplete(ctx context.Context, in ProductInput) (*Result, error)
	Publish(ctx context.Context, in ProductInput) (*Result, error)
	Remove(ctx context.Context, id string) error
	Restore(ctx context.Context, id string) error
	PurgeRecord(ctx context.Context, id string) error
	SetVisibility(ctx context.Context, id string, visible bool) error
	ToggleVisibility(ctx context.Context, id string) (bool, error)
	ClearBuffer(ctx context.Context) (int, error)
	List(ctx context.Context, source string) ([]domain.Product, error)
	NextID(ctx context.Context) (string, error)
}

type catalogService struct {
	repos *repository.Repositories
	media storage.MediaStore
	opts   Options
	logger *zap.Logger
	locks  map[domain.Bucket]*sync.Mutex
	now   func() time.Time
}

// NewCatalogService creates a new instance of CatalogService
func NewCatalogService(repos *repository.Repositories, mediaStore storage.MediaStore, opts Options) CatalogService {
	locks := make(map[domain.Bucket]*sync.Mutex, len(domain.LockOrder))
	for _, b := range domain.LockOrder {
		locks[b] = &sync.Mutex{}
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &catalogService{
		repos:  repos,
		media:  mediaStore,
		opts:   opts,
		logger: logger,
		locks:  locks,
		now:    time.Now,
	}
}

// lock acquires the named bucket locks in canonical order and returns the
// matching release function
func (s *catalogService) lock(buckets ...domain.Bucket) func() {
	var held []*sync.Mutex
	for _, b := range domain.LockOrder {
		if slices.Contains(buckets, b) {
			m := s.locks[b]
			m.Lock()
			held = append(held, m)
		}
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

// Stage normalizes an upload into the buffer zone
func (s *catalogService) Stage(ctx context.Context, data []byte, filename string, rotation int) (domain.MediaRef, error) {
	if len(data) == 0 {
		return domain.MediaRef{}, fmt.Errorf("%w: empty upload", ErrValidation)
	}
	return s.media.Stage(ctx, data, filename, media.KindFromFilename(filename), rotation)
}

// GetDraft returns the saved form state, or nil when there is none
func (s *catalogService) GetDraft(ctx context.Context) (domain.Draft, error) {
	unlock := s.lock(domain.BucketDraft)
	defer unlock()

	return s.repos.Draft.Load(ctx)
}

func (s *catalogService) SaveDraft(ctx context.Context, draft domain.Draft) error {
	unlock := s.lock(domain.BucketDraft)
	defer unlock()

	return s.repos.Draft.Save(ctx, draft)
}

// ClearDraft empties the draft. Buffer files are left alone so that a
// "complete later" record keeps its uploads.
func (s *catalogService) ClearDraft(ctx context.Context) error {
	unlock := s.lock(domain.BucketDraft)
	defer unlock()

	return s.repos.Draft.Clear(ctx)
}

// SaveIncomplete parks a partially filled product in the unfilled bucket.
// Its uploads are promoted to the live zone under draft names.
func (s *catalogService) SaveIncomplete(ctx context.Context, in ProductInput) (*Result, error) {
	safeID, err := validateInput(in, false)
	if err != nil {
		return nil, err
	}

	mainRef, gallery, warnings, err := s.finalizeMedia(ctx, in, safeID+"_draft_main", safeID+"_draft_")
	if err != nil {
		return nil, err
	}

	product := s.buildProduct(in, mainRef, gallery)

	unlock := s.lock(domain.BucketUnfilled)
	defer unlock()

	if err := s.upsert(ctx, s.repos.Unfilled, product, domain.ZoneLive); err != nil {
		return nil, fmt.Errorf("failed to save unfilled product: %w", err)
	}

	return &Result{Product: product, Warnings: warnings}, nil
}

// Publish stores a complete product in the live bucket, removes it from
// the unfilled bucket and clears the draft. A missing main image is
// rejected before anything is written.
func (s *catalogService) Publish(ctx context.Context, in ProductInput) (*Result, error) {
	safeID, err := validateInput(in, true)
	if err != nil {
		return nil, err
	}

	mainRef, gallery, warnings, err := s.finalizeMedia(ctx, in, safeID+"_main", safeID+"_")
	if err != nil {
		return nil, err
	}

	product := s.buildProduct(in, mainRef, gallery)
	visible := true
	product.Visible = &visible

	unlock := s.lock(domain.BucketDraft, domain.BucketUnfilled, domain.BucketLive)
	defer unlock()

	if err := s.upsert(ctx, s.repos.Live, product, domain.ZoneLive); err != nil {
		return nil, fmt.Errorf("failed to save live product: %w", err)
	}

	unfilled, err := s.repos.Unfilled.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load unfilled products: %w", err)
	}
	if i := indexOf(unfilled, product.ID); i >= 0 {
		s.purgeOrphans(unfilled[i], product, domain.ZoneLive)
		if err := s.repos.Unfilled.Save(ctx, slices.Delete(unfilled, i, i+1)); err != nil {
			return nil, fmt.Errorf("failed to save unfilled products: %w", err)
		}
	}

	if err := s.repos.Draft.Clear(ctx); err != nil {
		return nil, fmt.Errorf("failed to clear draft: %w", err)
	}

	return &Result{Product: product, Warnings: warnings}, nil
}

// Remove moves a live or unfilled product and its media into the trash
func (s *catalogService) Remove(ctx context.Context, id string) error {
	unlock := s.lock(domain.BucketUnfilled, domain.BucketLive, domain.BucketTrash)
	defer unlock()

	source := s.repos.Live
	products, err := source.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load live products: %w", err)
	}

	i := indexOf(products, id)
	if i < 0 {
		source = s.repos.Unfilled
		if products, err = source.Load(ctx); err != nil {
			return fmt.Errorf("failed to load unfilled products: %w", err)
		}
		if i = indexOf(products, id); i < 0 {
			return ErrProductNotFound
		}
	}

	product := products[i]
	if err := s.moveRefs(&product, s.media.Trash); err != nil {
		return err
	}

	// The trash is written first: an interruption leaves a duplicate
	// record rather than a lost one.
	if err := s.upsert(ctx, s.repos.Trash, product, domain.ZoneTrash); err != nil {
		return fmt.Errorf("failed to save trash: %w", err)
	}
	if err := source.Save(ctx, slices.Delete(products, i, i+1)); err != nil {
		return fmt.Errorf("failed to save source bucket: %w", err)
	}

	return nil
}

// Restore moves a trashed product and its media back to the live bucket
func (s *catalogService) Restore(ctx context.Context, id string) error {
	unlock := s.lock(domain.BucketLive, domain.BucketTrash)
	defer unlock()

	trashed, err := s.repos.Trash.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load trash: %w", err)
	}

	i := indexOf(trashed, id)
	if i < 0 {
		return ErrProductNotFound
	}

	product := trashed[i]
	if err := s.moveRefs(&product, s.media.Untrash); err != nil {
		return err
	}
	if product.Visible == nil {
		visible := true
		product.Visible = &visible
	}

	if err := s.upsert(ctx, s.repos.Live, product, domain.ZoneLive); err != nil {
		return fmt.Errorf("failed to save live products: %w", err)
	}
	if err := s.repos.Trash.Save(ctx, slices.Delete(trashed, i, i+1)); err != nil {
		return fmt.Errorf("failed to save trash: %w", err)
	}

	return nil
}

// PurgeRecord deletes a trashed product's files and drops the record
func (s *catalogService) PurgeRecord(ctx context.Context, id string) error {
	unlock := s.lock(domain.BucketTrash)
	defer unlock()

	trashed, err := s.repos.Trash.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load trash: %w", err)
	}

	i := indexOf(trashed, id)
	if i < 0 {
		return ErrProductNotFound
	}

	for _, ref := range trashed[i].Refs() {
		if err := s.media.Purge(ref); err != nil {
			return err
		}
	}

	if err := s.repos.Trash.Save(ctx, slices.Delete(trashed, i, i+1)); err != nil {
		return fmt.Errorf("failed to save trash: %w", err)
	}
	return nil
}

// SetVisibility shows or hides a live product on the storefront
func (s *catalogService) SetVisibility(ctx context.Context, id string, visible bool) error {
	_, err := s.updateVisibility(ctx, id, func(bool) bool { return visible })
	return err
}

// ToggleVisibility flips a live product's visibility and returns the new value
func (s *catalogService) ToggleVisibility(ctx context.Context, id string) (bool, error) {
	return s.updateVisibility(ctx, id, func(current bool) bool { return !current })
}

func (s *catalogService) updateVisibility(ctx context.Context, id string, next func(current bool) bool) (bool, error) {
	unlock := s.lock(domain.BucketLive)
	defer unlock()

	products, err := s.repos.Live.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to load live products: %w", err)
	}

	i := indexOf(products, id)
	if i < 0 {
		return false, ErrProductNotFound
	}

	visible := next(products[i].IsVisible())
	products[i].Visible = &visible
	if err := s.repos.Live.Save(ctx, products); err != nil {
		return false, fmt.Errorf("failed to save live products: %w", err)
	}
	return visible, nil
}

func (s *catalogService) ClearBuffer(ctx context.Context) (int, error) {
	return s.media.ClearBuffer()
}

// List returns one bucket. Unknown sources list the live bucket.
func (s *catalogService) List(ctx context.Context, source string) ([]domain.Product, error) {
	switch source {
	case SourceTrash:
		return s.repos.Trash.Load(ctx)
	case SourceUnfilled:
		return s.repos.Unfilled.Load(ctx)
	default:
		return s.repos.Live.Load(ctx)
	}
}

// NextID returns the prefix followed by one more than the highest numeric
// suffix found in any bucket, trash included
func (s *catalogService) NextID(ctx context.Context) (string, error) {
	highest := s.opts.IDFloor

	consider := func(id string) {
		m := idSuffix.FindStringSubmatch(strings.TrimSpace(id))
		if m == nil {
			return
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > highest {
			highest = n
		}
	}

	for _, repo := range []repository.BucketRepository{s.repos.Live, s.repos.Unfilled, s.repos.Trash} {
		products, err := repo.Load(ctx)
		if err != nil {
			return "", err
		}
		for _, p := range products {
			consider(p.ID)
		}
	}

	draft, err := s.repos.Draft.Load(ctx)
	if err != nil {
		return "", err
	}
	consider(draft.ID())

	return fmt.Sprintf("%s%d", s.opts.IDPrefix, highest+1), nil
}

func validateInput(in ProductInput, requireMain bool) (string, error) {
	safeID := SanitizeID(in.ID)
	if safeID == "" {
		return "", fmt.Errorf("%w: product id is missing", ErrValidation)
	}
	if requireMain && in.Main.isEmpty() {
		return "", fmt.Errorf("%w: main image is missing", ErrValidation)
	}
	if in.Stars != 0 && (in.Stars < MinStars || in.Stars > MaxStars) {
		return "", fmt.Errorf("%w: stars must be between %d and %d", ErrValidation, MinStars, MaxStars)
	}
	if in.StockCount < 0 {
		return "", fmt.Errorf("%w: stock count cannot be negative", ErrValidation)
	}
	return safeID, nil
}

// finalizeMedia promotes the submission's media into the live zone. A main
// image that cannot be processed fails the submission; a gallery item that
// cannot be processed is skipped with a warning.
func (s *catalogService) finalizeMedia(ctx context.Context, in ProductInput, mainBase, galleryPrefix string) (*domain.MediaRef, []domain.MediaRef, []string, error) {
	var mainRef *domain.MediaRef
	if !in.Main.isEmpty() {
		ref, err := s.resolve(ctx, *in.Main, mainBase)
		if err != nil {
			if errors.Is(err, media.ErrImageProcessingFailed) {
				return nil, nil, nil, fmt.Errorf("%w: main image: %v", ErrValidation, err)
			}
			return nil, nil, nil, err
		}
		mainRef = &ref
	}

	// Live files already referenced by this submission keep their names.
	taken := make(map[string]bool)
	for _, item := range in.Gallery {
		if ref := domain.ParseMediaRef(item.Ref); len(item.Data) == 0 && ref.Zone == domain.ZoneLive {
			taken[strings.TrimSuffix(ref.Filename(), ref.Ext())] = true
		}
	}

	gallery := []domain.MediaRef{}
	var warnings []string
	last := 0
	for i, item := range in.Gallery {
		if item.isEmpty() {
			continue
		}

		n := last + 1
		for taken[fmt.Sprintf("%s%d", galleryPrefix, n)] && !s.isOwnName(item, galleryPrefix, n) {
			n++
		}

		ref, err := s.resolve(ctx, item, fmt.Sprintf("%s%d", galleryPrefix, n))
		if err != nil {
			if errors.Is(err, media.ErrImageProcessingFailed) {
				warnings = append(warnings, fmt.Sprintf("gallery item %d skipped: %v", i+1, err))
				continue
			}
			return nil, nil, nil, err
		}
		last = n
		gallery = append(gallery, ref)
	}

	return mainRef, gallery, warnings, nil
}

func (s *catalogService) isOwnName(item MediaInput, galleryPrefix string, n int) bool {
	ref := domain.ParseMediaRef(item.Ref)
	return len(item.Data) == 0 && ref.Zone == domain.ZoneLive &&
		strings.TrimSuffix(ref.Filename(), ref.Ext()) == fmt.Sprintf("%s%d", galleryPrefix, n)
}

func (s *catalogService) resolve(ctx context.Context, in MediaInput, baseName string) (domain.MediaRef, error) {
	ref := domain.ParseMediaRef(strings.TrimSpace(in.Ref))
	if len(in.Data) > 0 {
		staged, err := s.media.Stage(ctx, in.Data, in.Filename, in.Kind, in.Rotation)
		if err != nil {
			return domain.MediaRef{}, err
		}
		ref = staged
	}
	return s.media.Finalize(ref, baseName)
}

func (s *catalogService) buildProduct(in ProductInput, mainRef *domain.MediaRef, gallery []domain.MediaRef) domain.Product {
	stars := in.Stars
	if stars == 0 {
		stars = DefaultStars
	}

	return domain.Product{
		ID:            strings.TrimSpace(in.ID),
		Name:          strings.TrimSpace(in.Name),
		Category:      in.Category,
		Fabric:        in.Fabric,
		Color:         in.Color,
		Price:         in.Price,
		DiscountPrice: in.DiscountPrice,
		Description:   in.Description,
		Stars:         stars,
		Stock:         in.Stock,
		StockCount:    in.StockCount,
		Image:         mainRef,
		Gallery:       gallery,
		Timestamp:     s.now().Unix(),
	}
}

// moveRefs applies move to the main image and every gallery entry
func (s *catalogService) moveRefs(p *domain.Product, move func(domain.MediaRef) (domain.MediaRef, error)) error {
	if p.Image != nil {
		ref, err := move(*p.Image)
		if err != nil {
			return err
		}
		p.Image = &ref
	}

	moved := make([]domain.MediaRef, 0, len(p.Gallery))
	for _, g := range p.Gallery {
		ref, err := move(g)
		if err != nil {
			return err
		}
		moved = append(moved, ref)
	}
	p.Gallery = moved
	return nil
}

// upsert replaces any record sharing product's ID and appends product.
// Files of the replaced record in zone that product no longer uses are purged.
func (s *catalogService) upsert(ctx context.Context, repo repository.BucketRepository, product domain.Product, zone domain.Zone) error {
	products, err := repo.Load(ctx)
	if err != nil {
		return err
	}

	if i := indexOf(products, product.ID); i >= 0 {
		s.purgeOrphans(products[i], product, zone)
		products = slices.Delete(products, i, i+1)
	}

	return repo.Save(ctx, append(products, product))
}

func (s *catalogService) purgeOrphans(old, replacement domain.Product, zone domain.Zone) {
	keep := make(map[string]bool)
	for _, ref := range replacement.Refs() {
		keep[path.Clean(ref.Path)] = true
	}
	for _, ref := range old.Refs() {
		if ref.Zone == zone && !keep[path.Clean(ref.Path)] {
			if err := s.media.Purge(ref); err != nil {
				s.logger.Warn("Failed to purge replaced media",
					zap.String("product_id", old.ID),
					zap.String("path", ref.Path),
					zap.Error(err),
				)
			}
		}
	}
}

func indexOf(products []domain.Product, id string) int {
	return slices.IndexFunc(products, func(p domain.Product) bool { return p.ID == id })
}

// SanitizeID keeps the characters that are safe in a filename
func SanitizeID(id string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			return r
		}
		return -1
	}, id)
}
