package domain

import (
	"strconv"
	"time"

	"gorm.io/datatypes"
)

// Route keys a dashboard user may be granted.
const (
	RouteOrders   = "orders"
	RouteKitchen  = "kitchen"
	RouteCatalog  = "catalog"
	RoutePayments = "payments"
	RouteReports  = "reports"
	RouteUsers    = "users"
)

var KnownRoutes = []string{RouteOrders, RouteKitchen, RouteCatalog, RoutePayments, RouteReports, RouteUsers}

func IsKnownRoute(route string) bool {
	for _, r := range KnownRoutes {
		if r == route {
			return true
		}
	}
	return false
}

type User struct {
	ID            int64                       `gorm:"primaryKey"`
	Username      string                      `gorm:"type:text;not null;uniqueIndex"`
	Name          string                      `gorm:"type:text;not null;default:''"`
	PasswordHash  string                      `gorm:"type:text;not null"`
	AllowedRoutes datatypes.JSONSlice[string] `gorm:"type:jsonb;not null;default:'[]'"`
	Active        bool                        `gorm:"not null;default:true"`
	CreatedAt     time.Time                   `gorm:"not null"`
	UpdatedAt     time.Time                   `gorm:"not null"`
}

func (User) TableName() string { return "dashboard_users" }

// Allows reports whether the user holds any of the given routes.
func (u User) Allows(routes ...string) bool {
	for _, want := range routes {
		for _, have := range u.AllowedRoutes {
			if have == want {
				return true
			}
		}
	}
	return false
}

// Token is a bearer session. TokenKey stores the sha256 of the raw token.
type Token struct {
	ID        int64     `gorm:"primaryKey"`
	TokenKey  string    `gorm:"type:text;not null;uniqueIndex"`
	UserID    int64     `gorm:"not null;index"`
	UserAgent string    `gorm:"type:text;not null;default:''"`
	IPAddress string    `gorm:"type:text;not null;default:''"`
	Active    bool      `gorm:"not null;default:true"`
	CreatedAt time.Time `gorm:"not null"`
	ExpiresAt time.Time `gorm:"not null"`
}

func (Token) TableName() string { return "auth_tokens" }

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
