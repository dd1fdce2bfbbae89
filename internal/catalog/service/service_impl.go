package service

import (
	"context"
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/banca/internal/catalog/domain"
	"github.com/smallbiznis/banca/internal/clock"
	"github.com/smallbiznis/banca/internal/config"
	"github.com/smallbiznis/banca/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultCategoryPosition = 100

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	Clock      clock.Clock
	Storefront *config.StorefrontConfigHolder
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	repo       domain.Repository
	genID      *snowflake.Node
	clock      clock.Clock
	storefront *config.StorefrontConfigHolder
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("catalog.service"),
		repo:       p.Repo,
		genID:      p.GenID,
		clock:      p.Clock,
		storefront: p.Storefront,
	}
}

func (s *Service) ListItems(ctx context.Context, req domain.ListItemsRequest) ([]domain.ItemResponse, error) {
	items, err := s.repo.ListItems(ctx, s.db, domain.ItemFilter{
		Query:           strings.TrimSpace(req.Query),
		Category:        strings.TrimSpace(req.Category),
		IncludeInactive: req.IncludeInactive,
	})
	if err != nil {
		return nil, err
	}

	resp := make([]domain.ItemResponse, 0, len(items))
	for i := range items {
		resp = append(resp, toItemResponse(&items[i]))
	}
	return resp, nil
}

func (s *Service) GetItem(ctx context.Context, id string) (*domain.ItemResponse, error) {
	item, err := s.loadItem(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toItemResponse(item)
	return &resp, nil
}

func (s *Service) CreateItem(ctx context.Context, req domain.CreateItemRequest) (*domain.ItemResponse, error) {
	if req.SKU <= 0 {
		return nil, domain.ErrInvalidSKU
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	if req.Price.IsNegative() {
		return nil, domain.ErrInvalidPrice
	}
	if req.StockInitial < 0 {
		return nil, domain.ErrInvalidStock
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	now := s.clock.Now()
	item := &domain.Item{
		ID:           s.genID.Generate().Int64(),
		SKU:          req.SKU,
		Name:         name,
		Description:  strings.TrimSpace(req.Description),
		Price:        req.Price.Round(2),
		Category:     strings.TrimSpace(req.Category),
		ImageURL:     strings.TrimSpace(req.ImageURL),
		Active:       active,
		StockInitial: req.StockInitial,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.CreateItem(ctx, s.db, item); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateSKU
		}
		return nil, err
	}

	s.log.Info("item created", zap.Int64("item_id", item.ID), zap.Int64("sku", item.SKU))
	resp := toItemResponse(item)
	return &resp, nil
}

func (s *Service) UpdateItem(ctx context.Context, id string, req domain.UpdateItemRequest) (*domain.ItemResponse, error) {
	itemID, err := parseItemID(id)
	if err != nil {
		return nil, err
	}

	var item *domain.Item
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err = s.lockItem(ctx, tx, itemID)
		if err != nil {
			return err
		}
		if err := applyItemUpdate(item, req); err != nil {
			return err
		}

		item.UpdatedAt = s.clock.Now()
		if err := s.repo.UpdateItem(ctx, tx, item); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrDuplicateSKU
			}
			return err
		}
		if req.SoldCount != nil {
			return s.repo.UpdateSoldCount(ctx, tx, item.ID, item.SoldCount)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	resp := toItemResponse(item)
	return &resp, nil
}

func applyItemUpdate(item *domain.Item, req domain.UpdateItemRequest) error {
	if req.SKU != nil {
		if *req.SKU <= 0 {
			return domain.ErrInvalidSKU
		}
		item.SKU = *req.SKU
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.ErrInvalidName
		}
		item.Name = name
	}
	if req.Description != nil {
		item.Description = strings.TrimSpace(*req.Description)
	}
	if req.Price != nil {
		if req.Price.IsNegative() {
			return domain.ErrInvalidPrice
		}
		item.Price = req.Price.Round(2)
	}
	if req.Category != nil {
		item.Category = strings.TrimSpace(*req.Category)
	}
	if req.ImageURL != nil {
		item.ImageURL = strings.TrimSpace(*req.ImageURL)
	}
	if req.Active != nil {
		item.Active = *req.Active
	}
	if req.StockInitial != nil {
		if *req.StockInitial < 0 {
			return domain.ErrInvalidStock
		}
		item.StockInitial = *req.StockInitial
	}
	if req.SoldCount != nil {
		if *req.SoldCount < 0 {
			return domain.ErrInvalidStock
		}
		item.SoldCount = *req.SoldCount
	}
	return nil
}

// SetActive only flips the active flag; stock counters stay with the sales ledger.
func (s *Service) SetActive(ctx context.Context, id string, active bool) (*domain.ItemResponse, error) {
	itemID, err := parseItemID(id)
	if err != nil {
		return nil, err
	}

	var item *domain.Item
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err = s.lockItem(ctx, tx, itemID)
		if err != nil {
			return err
		}
		item.Active = active
		item.UpdatedAt = s.clock.Now()
		return s.repo.SetItemActive(ctx, tx, item.ID, active, item.UpdatedAt)
	})
	if err != nil {
		return nil, err
	}

	resp := toItemResponse(item)
	return &resp, nil
}

func (s *Service) DeleteItem(ctx context.Context, id string) error {
	item, err := s.loadItem(ctx, id)
	if err != nil {
		return err
	}
	return s.repo.DeleteItem(ctx, s.db, item.ID)
}

// Categories lists distinct active categories, ordered by the configured
// category positions and then by name. Blank categories use the storefront default.
func (s *Service) Categories(ctx context.Context) ([]string, error) {
	raw, err := s.repo.ActiveCategories(ctx, s.db)
	if err != nil {
		return nil, err
	}
	orders, err := s.repo.ListCategoryOrders(ctx, s.db)
	if err != nil {
		return nil, err
	}

	positions := make(map[string]int, len(orders))
	for _, co := range orders {
		positions[co.Name] = co.Position
	}

	fallback := s.storefront.Get().DefaultCategory
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, category := range raw {
		category = strings.TrimSpace(category)
		if category == "" {
			category = fallback
		}
		if _, ok := seen[category]; ok {
			continue
		}
		seen[category] = struct{}{}
		out = append(out, category)
	}

	position := func(name string) int {
		if p, ok := positions[name]; ok {
			return p
		}
		return defaultCategoryPosition
	}
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := position(out[i]), position(out[j])
		if pi != pj {
			return pi < pj
		}
		return out[i] < out[j]
	})
	return out, nil
}

func (s *Service) ListCategoryOrders(ctx context.Context) ([]domain.CategoryOrderResponse, error) {
	rows, err := s.repo.ListCategoryOrders(ctx, s.db)
	if err != nil {
		return nil, err
	}
	resp := make([]domain.CategoryOrderResponse, 0, len(rows))
	for i := range rows {
		resp = append(resp, toCategoryOrderResponse(&rows[i]))
	}
	return resp, nil
}

func (s *Service) CreateCategoryOrder(ctx context.Context, req domain.CategoryOrderRequest) (*domain.CategoryOrderResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	position := defaultCategoryPosition
	if req.Position != nil {
		position = *req.Position
	}

	now := s.clock.Now()
	co := &domain.CategoryOrder{
		ID:        s.genID.Generate().Int64(),
		Name:      name,
		Slug:      slug.Make(name),
		Position:  position,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateCategoryOrder(ctx, s.db, co); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateName
		}
		return nil, err
	}
	resp := toCategoryOrderResponse(co)
	return &resp, nil
}

func (s *Service) UpdateCategoryOrder(ctx context.Context, id string, req domain.CategoryOrderRequest) (*domain.CategoryOrderResponse, error) {
	coID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, domain.ErrInvalidID
	}
	co, err := s.repo.FindCategoryOrderByID(ctx, s.db, coID.Int64())
	if err != nil {
		return nil, err
	}
	if co == nil {
		return nil, domain.ErrNotFound
	}

	if name := strings.TrimSpace(req.Name); name != "" {
		co.Name = name
		co.Slug = slug.Make(name)
	}
	if req.Position != nil {
		co.Position = *req.Position
	}
	co.UpdatedAt = s.clock.Now()

	if err := s.repo.UpdateCategoryOrder(ctx, s.db, co); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateName
		}
		return nil, err
	}
	resp := toCategoryOrderResponse(co)
	return &resp, nil
}

func (s *Service) DeleteCategoryOrder(ctx context.Context, id string) error {
	coID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return domain.ErrInvalidID
	}
	co, err := s.repo.FindCategoryOrderByID(ctx, s.db, coID.Int64())
	if err != nil {
		return err
	}
	if co == nil {
		return domain.ErrNotFound
	}
	return s.repo.DeleteCategoryOrder(ctx, s.db, co.ID)
}

func (s *Service) loadItem(ctx context.Context, id string) (*domain.Item, error) {
	itemID, err := parseItemID(id)
	if err != nil {
		return nil, err
	}
	item, err := s.repo.FindItemByID(ctx, s.db, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

func (s *Service) lockItem(ctx context.Context, tx *gorm.DB, id int64) (*domain.Item, error) {
	item, err := s.repo.LockItemByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

func parseItemID(id string) (int64, error) {
	itemID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return 0, domain.ErrInvalidID
	}
	return itemID.Int64(), nil
}

func toItemResponse(item *domain.Item) domain.ItemResponse {
	return domain.ItemResponse{
		ID:           snowflake.ID(item.ID).String(),
		SKU:          item.SKU,
		Name:         item.Name,
		Description:  item.Description,
		Price:        item.Price,
		Category:     item.Category,
		ImageURL:     item.ImageURL,
		Active:       item.Active,
		StockInitial: item.StockInitial,
		SoldCount:    item.SoldCount,
		Available:    item.Available(),
		CreatedAt:    item.CreatedAt,
		UpdatedAt:    item.UpdatedAt,
	}
}

func toCategoryOrderResponse(co *domain.CategoryOrder) domain.CategoryOrderResponse {
	return domain.CategoryOrderResponse{
		ID:       snowflake.ID(co.ID).String(),
		Name:     co.Name,
		Slug:     co.Slug,
		Position: co.Position,
	}
}

