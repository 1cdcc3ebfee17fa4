package entities

import "github.com/shopspring/decimal"

// Product is a catalog item that can be purchased with wallet balance
type Product struct {
	ID             string          `json:"id"`
	Name           string          `json:"name" validate:"required,max=128"`
	Image          string          `json:"image"`
	CategoryID     string          `json:"categoryId"`                   // Empty means uncategorized
	PriceUSD       decimal.Decimal `json:"priceUSD" validate:"gt=0,usd"` // Fixed price, or the floor when IsCustomAmount
	Amount         int64           `json:"amount" validate:"gte=0"`      // Coins granted by a fixed-price purchase
	IsCustomAmount bool            `json:"isCustomAmount"`
	USDToCoinRate  decimal.Decimal `json:"usdToCoinRate" validate:"gte=0"` // Only read when IsCustomAmount
}

// Category groups products for display
type Category struct {
	ID    string `json:"id"`
	Title string `json:"title" validate:"required,max=128"`
	Image string `json:"image"`
}

// RechargeMethod describes a payment channel a user can deposit through
type RechargeMethod struct {
	ID            string `json:"id"`
	Label         string `json:"label" validate:"required,max=128"`
	AccountID     string `json:"accountId" validate:"required"` // IBAN, wallet number or similar
	RecipientName string `json:"recipientName"`
	Instructions  string `json:"instructions"`
	Image         string `json:"image"`
	Color         string `json:"color"`
}

// Banner is a promotional image shown on the storefront
type Banner struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

// ThemeColors holds the storefront palette
type ThemeColors struct {
	Primary    string `json:"primary"`
	Secondary  string `json:"secondary"`
	Background string `json:"background"`
	Surface    string `json:"surface"`
	Text       string `json:"text"`
}

// AppConfig is the singleton site configuration
type AppConfig struct {
	AppName             string          `json:"appName" validate:"required"`
	LogoURL             string          `json:"logoUrl"`
	BackgroundURL       string          `json:"backgroundUrl"`
	USDToEGPRate        decimal.Decimal `json:"usdToEgpRate" validate:"gt=0"`
	GlobalUSDToCoinRate decimal.Decimal `json:"globalUsdToCoinRate" validate:"gt=0"`
	DiamondPriceUSD     decimal.Decimal `json:"diamondPriceUSD" validate:"gte=0"`
	WelcomeAnnouncement string          `json:"welcomeAnnouncement"`
	Banners             []Banner        `json:"banners"`
	WhatsAppNumber      string          `json:"whatsappNumber"`
	ThemeColors         ThemeColors     `json:"themeColors"`
}

// DefaultAppConfig returns the configuration used until an admin saves one
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		AppName:             "ROYAL-CHARGE",
		LogoURL:             "https://cdn-icons-png.flaticon.com/512/9402/9402325.png",
		USDToEGPRate:        decimal.NewFromInt(50),
		GlobalUSDToCoinRate: decimal.NewFromInt(100),
		DiamondPriceUSD:     decimal.RequireFromString("0.01"),
		WelcomeAnnouncement: "Welcome to ROYAL-CHARGE!",
		Banners:             []Banner{},
		ThemeColors: ThemeColors{
			Primary:    "#facc15",
			Secondary:  "#0f172a",
			Background: "#f8fafc",
			Surface:    "#ffffff",
			Text:       "#000000",
		},
	}
}

// CoinRate returns the coins-per-dollar rate for a custom-amount product,
// falling back to the global rate when the product has none
func (p *Product) CoinRate(cfg *AppConfig) decimal.Decimal {
	if p.USDToCoinRate.IsPositive() {
		return p.USDToCoinRate
	}
	if cfg != nil && cfg.GlobalUSDToCoinRate.IsPositive() {
		return cfg.GlobalUSDToCoinRate
	}
	return decimal.NewFromInt(100)
}

// Clone returns a copy that shares no slices with c
func (c *AppConfig) Clone() *AppConfig {
	out := *c
	out.Banners = append([]Banner(nil), c.Banners...)
	if out.Banners == nil {
		out.Banners = []Banner{}
	}
	return &out
}
