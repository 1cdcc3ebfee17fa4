package catalog

import (
	"context"
	"strings"

	"github.com/fadedpez/royalcharge/internal/logging"
	"github.com/fadedpez/royalcharge/internal/types"
	"github.com/fadedpez/royalcharge/internal/validation"
	"github.com/fadedpez/royalcharge/pkg/entities"
	"github.com/fadedpez/royalcharge/pkg/livesync"
	catalogRepo "github.com/fadedpez/royalcharge/pkg/repositories/catalog"
	"github.com/fadedpez/royalcharge/pkg/services/media"
	"github.com/fadedpez/royalcharge/pkg/services/txn"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ImageResolver turns inline image data into a stored URL
type ImageResolver interface {
	Resolve(ctx context.Context, kind media.Kind, ref string) (string, error)
}

// Catalog is everything a storefront needs to render its shop
type Catalog struct {
	Products   []*entities.Product        `json:"products"`
	Categories []*entities.Category       `json:"categories"`
	Methods    []*entities.RechargeMethod `json:"methods"`
	Config     *entities.AppConfig        `json:"config"`
}

// Config holds the collaborators of the catalog service
type Config struct {
	Images   ImageResolver
	Notifier livesync.Notifier
	Retrier  txn.Retrier
	Log      *logging.Logger
}

// Service exposes catalog reads and the admin catalog editor
type Service struct {
	repo     catalogRepo.Repository
	images   ImageResolver
	notifier livesync.Notifier
	retry    txn.Retrier
	log      *logging.Logger
}

// NewService creates a new catalog service
func NewService(repo catalogRepo.Repository, cfg *Config) *Service {
	s := &Service{
		repo:     repo,
		images:   cfg.Images,
		notifier: cfg.Notifier,
		retry:    cfg.Retrier,
		log:      cfg.Log,
	}
	if s.notifier == nil {
		s.notifier = livesync.NopNotifier{}
	}
	if s.log == nil {
		s.log = logging.Discard
	}
	s.log = s.log.Component("catalog")
	return s
}

// Snapshot returns the whole catalog and the site configuration
func (s *Service) Snapshot(ctx context.Context) (*Catalog, error) {
	out := &Catalog{}
	err := s.retry.Do(ctx, "catalog_snapshot", func() error {
		var err error
		if out.Products, err = s.repo.ListProducts(ctx); err != nil {
			return err
		}
		if out.Categories, err = s.repo.ListCategories(ctx); err != nil {
			return err
		}
		if out.Methods, err = s.repo.ListMethods(ctx); err != nil {
			return err
		}
		out.Config, err = s.repo.GetConfig(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetProduct returns one product
func (s *Service) GetProduct(ctx context.Context, id string) (*entities.Product, error) {
	var product *entities.Product
	err := s.retry.Do(ctx, "get_product", func() error {
		var err error
		product, err = s.repo.GetProduct(ctx, id)
		return err
	})
	return product, err
}

// GetMethod returns one recharge method
func (s *Service) GetMethod(ctx context.Context, id string) (*entities.RechargeMethod, error) {
	var method *entities.RechargeMethod
	err := s.retry.Do(ctx, "get_method", func() error {
		var err error
		method, err = s.repo.GetMethod(ctx, id)
		return err
	})
	return method, err
}

// GetConfig returns the site configuration
func (s *Service) GetConfig(ctx context.Context) (*entities.AppConfig, error) {
	var cfg *entities.AppConfig
	err := s.retry.Do(ctx, "get_config", func() error {
		var err error
		cfg, err = s.repo.GetConfig(ctx)
		return err
	})
	return cfg, err
}

// SaveProduct creates or replaces a product. An empty id creates a new one.
func (s *Service) SaveProduct(ctx context.Context, product *entities.Product) (*entities.Product, error) {
	product.Name = strings.TrimSpace(product.Name)
	if err := validation.Struct(product); err != nil {
		return nil, err
	}
	product.PriceUSD = entities.RoundUSD(product.PriceUSD)
	if product.ID == "" {
		product.ID = uuid.NewString()
	}

	var err error
	if product.Image, err = s.resolve(ctx, media.KindProduct, product.Image); err != nil {
		return nil, err
	}

	if err := s.retry.Do(ctx, "save_product", func() error {
		return s.repo.SaveProduct(ctx, product)
	}); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"product_id": product.ID, "name": product.Name}).Info("product saved")
	s.notifier.CatalogChanged()
	return product, nil
}

// DeleteProduct removes a product. Existing orders keep their product name.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	return s.remove(ctx, "delete_product", id, s.repo.DeleteProduct)
}

// SaveCategory creates or replaces a category
func (s *Service) SaveCategory(ctx context.Context, category *entities.Category) (*entities.Category, error) {
	category.Title = strings.TrimSpace(category.Title)
	if err := validation.Struct(category); err != nil {
		return nil, err
	}
	if category.ID == "" {
		category.ID = uuid.NewString()
	}

	var err error
	if category.Image, err = s.resolve(ctx, media.KindProduct, category.Image); err != nil {
		return nil, err
	}

	if err := s.retry.Do(ctx, "save_category", func() error {
		return s.repo.SaveCategory(ctx, category)
	}); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"category_id": category.ID}).Info("category saved")
	s.notifier.CatalogChanged()
	return category, nil
}

// DeleteCategory removes a category; its products become uncategorized
func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	return s.remove(ctx, "delete_category", id, s.repo.DeleteCategory)
}

// SaveMethod creates or replaces a recharge method
func (s *Service) SaveMethod(ctx context.Context, method *entities.RechargeMethod) (*entities.RechargeMethod, error) {
	method.Label = strings.TrimSpace(method.Label)
	method.AccountID = strings.TrimSpace(method.AccountID)
	if err := validation.Struct(method); err != nil {
		return nil, err
	}
	if method.ID == "" {
		method.ID = uuid.NewString()
	}

	var err error
	if method.Image, err = s.resolve(ctx, media.KindBranding, method.Image); err != nil {
		return nil, err
	}

	if err := s.retry.Do(ctx, "save_method", func() error {
		return s.repo.SaveMethod(ctx, method)
	}); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"method_id": method.ID, "label": method.Label}).Info("recharge method saved")
	s.notifier.CatalogChanged()
	return method, nil
}

// DeleteMethod removes a recharge method
func (s *Service) DeleteMethod(ctx context.Context, id string) error {
	return s.remove(ctx, "delete_method", id, s.repo.DeleteMethod)
}

// UpdateConfig replaces the site configuration
func (s *Service) UpdateConfig(ctx context.Context, cfg *entities.AppConfig) (*entities.AppConfig, error) {
	if err := validation.Struct(cfg); err != nil {
		return nil, err
	}
	cfg = cfg.Clone()

	var err error
	if cfg.LogoURL, err = s.resolve(ctx, media.KindBranding, cfg.LogoURL); err != nil {
		return nil, err
	}
	if cfg.BackgroundURL, err = s.resolve(ctx, media.KindBranding, cfg.BackgroundURL); err != nil {
		return nil, err
	}
	for i := range cfg.Banners {
		if cfg.Banners[i].ID == "" {
			cfg.Banners[i].ID = uuid.NewString()
		}
		if cfg.Banners[i].URL, err = s.resolve(ctx, media.KindBranding, cfg.Banners[i].URL); err != nil {
			return nil, err
		}
	}

	if err := s.retry.Do(ctx, "update_config", func() error {
		return s.repo.SaveConfig(ctx, cfg)
	}); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"usd_to_egp":  cfg.USDToEGPRate.String(),
		"usd_to_coin": cfg.GlobalUSDToCoinRate.String(),
	}).Info("site configuration updated")
	s.notifier.ConfigChanged()
	return cfg, nil
}

func (s *Service) remove(ctx context.Context, op, id string, del func(context.Context, string) error) error {
	if id == "" {
		return types.NewStoreError(types.ErrValidation, "id is required")
	}
	if err := s.retry.Do(ctx, op, func() error { return del(ctx, id) }); err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{"id": id, "operation": op}).Info("catalog entry deleted")
	s.notifier.CatalogChanged()
	return nil
}

func (s *Service) resolve(ctx context.Context, kind media.Kind, ref string) (string, error) {
	if s.images == nil {
		return ref, nil
	}
	return s.images.Resolve(ctx, kind, ref)
}
