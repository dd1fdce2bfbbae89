// Package ordertest builds a fully wired order service over a test database.
package ordertest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/banca/internal/cache"
	catalogrepo "github.com/smallbiznis/banca/internal/catalog/repository"
	"github.com/smallbiznis/banca/internal/clock"
	"github.com/smallbiznis/banca/internal/config"
	"github.com/smallbiznis/banca/internal/inventory"
	"github.com/smallbiznis/banca/internal/order/repository"
	"github.com/smallbiznis/banca/internal/order/service"
	"github.com/smallbiznis/banca/internal/orderevents"
	paymentrepo "github.com/smallbiznis/banca/internal/payment/repository"
	"github.com/smallbiznis/banca/internal/statuslog"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Events records every broadcast.
type Events struct {
	mu     sync.Mutex
	events []orderevents.Event
}

func (e *Events) Broadcast(_ context.Context, event orderevents.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil
}

func (e *Events) All() []orderevents.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]orderevents.Event(nil), e.events...)
}

// Count returns how many events of the given kind were sent.
func (e *Events) Count(kind string) int {
	n := 0
	for _, ev := range e.All() {
		if ev.Event == kind {
			n++
		}
	}
	return n
}

type Fixture struct {
	DB        *gorm.DB
	Node      *snowflake.Node
	Clock     *clock.FakeClock
	Events    *Events
	Ledger    *inventory.Ledger
	StatusLog *statuslog.Recorder
	Service   *service.Service
}

func New(t *testing.T, db *gorm.DB) *Fixture {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	log := zap.NewNop()
	clk := clock.NewFakeClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	events := &Events{}
	ledger := inventory.New(inventory.Params{Log: log, Repo: catalogrepo.Provide()})
	recorder := statuslog.New(statuslog.Params{DB: db, Log: log, GenID: node, Clock: clk})

	svc := service.New(service.Params{
		DB:          db,
		Log:         log,
		GenID:       node,
		Repo:        repository.Provide(),
		CatalogRepo: catalogrepo.Provide(),
		PaymentRepo: paymentrepo.Provide(),
		Ledger:      ledger,
		StatusLog:   recorder,
		Events:      events,
		StatusCache: cache.NewNoopOrderStatusCache(),
		Clock:       clk,
		Storefront:  config.NewStaticStorefrontConfigHolder(config.DefaultStorefrontConfig()),
	})
	return &Fixture{
		DB:        db,
		Node:      node,
		Clock:     clk,
		Events:    events,
		Ledger:    ledger,
		StatusLog: recorder,
		Service:   svc,
	}
}
