package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Item struct {
	ID           int64           `gorm:"primaryKey"`
	SKU          int64           `gorm:"column:sku;not null;uniqueIndex"`
	Name         string          `gorm:"type:text;not null"`
	Description  string          `gorm:"type:text;not null;default:''"`
	Price        decimal.Decimal `gorm:"type:numeric(9,2);not null"`
	Category     string          `gorm:"type:text;not null;default:''"`
	ImageURL     string          `gorm:"column:image_url;type:text;not null;default:''"`
	Active       bool            `gorm:"not null;default:true"`
	StockInitial int             `gorm:"not null;default:0"`
	SoldCount    int             `gorm:"not null;default:0"`
	CreatedAt    time.Time       `gorm:"not null"`
	UpdatedAt    time.Time       `gorm:"not null"`
}

func (Item) TableName() string { return "items" }

// Available is the sellable quantity; it never goes negative.
func (i Item) Available() int {
	if left := i.StockInitial - i.SoldCount; left > 0 {
		return left
	}
	return 0
}

// StockCeiling is the highest value SoldCount may reach.
func (i Item) StockCeiling() int {
	if i.StockInitial < 0 {
		return 0
	}
	return i.StockInitial
}

type CategoryOrder struct {
	ID        int64     `gorm:"primaryKey"`
	Name      string    `gorm:"type:text;not null;uniqueIndex"`
	Slug      string    `gorm:"type:text;not null"`
	Position  int       `gorm:"not null;default:100"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (CategoryOrder) TableName() string { return "category_orders" }
