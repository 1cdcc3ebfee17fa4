package catalog

import (
	"context"
	"path/filepath"
	"testing"

	sqlitedb "github.com/fadedpez/royalcharge/pkg/db"
	"github.com/fadedpez/royalcharge/pkg/entities"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type RepositorySuite struct {
	suite.Suite
	newRepo func() Repository
	repo    Repository
	ctx     context.Context
}

func TestMemoryRepositorySuite(t *testing.T) {
	suite.Run(t, &RepositorySuite{
		newRepo: func() Repository { return NewMemoryRepository() },
	})
}

func TestSQLiteRepositorySuite(t *testing.T) {
	s := &RepositorySuite{}
	s.newRepo = func() Repository {
		conn, err := sqlitedb.Open(context.Background(), filepath.Join(s.T().TempDir(), "catalog.db"), nil)
		s.Require().NoError(err)
		return NewSQLiteRepository(conn)
	}
	suite.Run(t, s)
}

func (s *RepositorySuite) SetupTest() {
	s.ctx = context.Background()
	s.repo = s.newRepo()
}

func (s *RepositorySuite) TearDownTest() {
	s.repo.Close()
}

func (s *RepositorySuite) TestSaveAndGetProduct() {
	// Setup
	product := &entities.Product{
		ID:             "p1",
		Name:           "PUBG UC",
		CategoryID:     "games",
		PriceUSD:       decimal.RequireFromString("5"),
		Amount:         0,
		IsCustomAmount: true,
		USDToCoinRate:  decimal.NewFromInt(100),
	}

	// Execute
	s.Require().NoError(s.repo.SaveProduct(s.ctx, product))
	got, err := s.repo.GetProduct(s.ctx, "p1")

	// Assert
	s.Require().NoError(err)
	s.Equal("PUBG UC", got.Name)
	s.True(got.IsCustomAmount)
	s.True(decimal.RequireFromString("5").Equal(got.PriceUSD))
	s.True(decimal.NewFromInt(100).Equal(got.USDToCoinRate))

	product.Name = "PUBG Mobile UC"
	s.Require().NoError(s.repo.SaveProduct(s.ctx, product))
	got, err = s.repo.GetProduct(s.ctx, "p1")
	s.Require().NoError(err)
	s.Equal("PUBG Mobile UC", got.Name)

	products, err := s.repo.ListProducts(s.ctx)
	s.Require().NoError(err)
	s.Len(products, 1)
}

func (s *RepositorySuite) TestProductNotFound() {
	_, err := s.repo.GetProduct(s.ctx, "nope")
	s.ErrorIs(err, ErrProductNotFound)
	s.ErrorIs(s.repo.DeleteProduct(s.ctx, "nope"), ErrProductNotFound)
}

func (s *RepositorySuite) TestDeleteCategoryUncategorizesProducts() {
	// Setup
	s.Require().NoError(s.repo.SaveCategory(s.ctx, &entities.Category{ID: "games", Title: "Games"}))
	s.Require().NoError(s.repo.SaveProduct(s.ctx, &entities.Product{ID: "p1", Name: "UC", CategoryID: "games", PriceUSD: decimal.NewFromInt(1)}))

	// Execute
	err := s.repo.DeleteCategory(s.ctx, "games")

	// Assert
	s.Require().NoError(err)
	categories, err := s.repo.ListCategories(s.ctx)
	s.Require().NoError(err)
	s.Empty(categories)

	product, err := s.repo.GetProduct(s.ctx, "p1")
	s.Require().NoError(err)
	s.Equal("", product.CategoryID)

	s.ErrorIs(s.repo.DeleteCategory(s.ctx, "games"), ErrCategoryNotFound)
}

func (s *RepositorySuite) TestMethods() {
	method := &entities.RechargeMethod{ID: "vf", Label: "Vodafone Cash", AccountID: "0100", RecipientName: "Royal"}
	s.Require().NoError(s.repo.SaveMethod(s.ctx, method))

	got, err := s.repo.GetMethod(s.ctx, "vf")
	s.Require().NoError(err)
	s.Equal("Vodafone Cash", got.Label)
	s.Equal("0100", got.AccountID)

	methods, err := s.repo.ListMethods(s.ctx)
	s.Require().NoError(err)
	s.Len(methods, 1)

	s.Require().NoError(s.repo.DeleteMethod(s.ctx, "vf"))
	_, err = s.repo.GetMethod(s.ctx, "vf")
	s.ErrorIs(err, ErrMethodNotFound)
}

func (s *RepositorySuite) TestConfigDefaultsThenSaved() {
	// Setup
	cfg, err := s.repo.GetConfig(s.ctx)
	s.Require().NoError(err)
	s.Equal("ROYAL-CHARGE", cfg.AppName)
	s.True(decimal.NewFromInt(50).Equal(cfg.USDToEGPRate))

	// Execute
	cfg.USDToEGPRate = decimal.RequireFromString("48.5")
	cfg.Banners = []entities.Banner{{ID: "b1", URL: "https://cdn.example.com/b.png"}}
	s.Require().NoError(s.repo.SaveConfig(s.ctx, cfg))

	// Assert
	stored, err := s.repo.GetConfig(s.ctx)
	s.Require().NoError(err)
	s.True(decimal.RequireFromString("48.5").Equal(stored.USDToEGPRate))
	s.Require().Len(stored.Banners, 1)
	s.Equal("b1", stored.Banners[0].ID)
}
