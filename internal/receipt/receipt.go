// Package receipt renders the kitchen ticket for an order as a PDF.
package receipt

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/shopspring/decimal"
	appconfig "github.com/smallbiznis/banca/internal/config"
	orderdomain "github.com/smallbiznis/banca/internal/order/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const timeLayout = "02/01/2006 15:04"

var ErrEmptyOrder = errors.New("receipt_empty_order")

type Params struct {
	fx.In

	Log        *zap.Logger
	Storefront *appconfig.StorefrontConfigHolder
}

type Renderer struct {
	log        *zap.Logger
	storefront *appconfig.StorefrontConfigHolder
}

func New(p Params) *Renderer {
	return &Renderer{
		log:        p.Log.Named("receipt.renderer"),
		storefront: p.Storefront,
	}
}

// Render builds the ticket. The order must carry its lines.
func (r *Renderer) Render(order *orderdomain.Order) ([]byte, error) {
	if order == nil || len(order.Lines) == 0 {
		return nil, ErrEmptyOrder
	}

	cfg := config.NewBuilder().
		WithPageSize(pagesize.A5).
		WithPageNumber(props.PageNumber{
			Pattern: "Página {current} de {total}",
			Place:   props.RightBottom,
		}).
		Build()
	m := maroto.New(cfg)

	title := "Banca"
	if r.storefront != nil {
		title = r.storefront.Get().Title
	}

	m.AddRow(14,
		text.NewCol(8, title, props.Text{Size: 16, Style: fontstyle.Bold, Align: align.Left}),
		text.NewCol(4, "#"+strconv.FormatInt(order.ID, 10), props.Text{Size: 12, Style: fontstyle.Bold, Align: align.Right}),
	)

	customer := order.CustomerName
	if customer == "" {
		customer = "Cliente"
	}
	m.AddRow(18,
		col.New(12).Add(
			text.New("Cliente: "+customer, props.Text{Size: 10}),
			text.New("Pedido em: "+order.CreatedAt.Format(timeLayout), props.Text{Size: 9, Top: 5}),
			text.New("Status: "+order.Status, props.Text{Size: 9, Top: 10}),
		),
	)
	m.AddRow(4, line.NewCol(12))

	m.AddRow(8,
		text.NewCol(2, "Qtd", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(6, "Item", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(4, "Subtotal", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	for _, l := range order.Lines {
		m.AddRow(7,
			text.NewCol(2, fmt.Sprintf("%dx", l.Qty), props.Text{Size: 10}),
			text.NewCol(6, l.Name, props.Text{Size: 10}),
			text.NewCol(4, formatBRL(l.Subtotal()), props.Text{Size: 10, Align: align.Right}),
		)
	}
	m.AddRow(4, line.NewCol(12))

	m.AddRow(10,
		col.New(6),
		text.NewCol(2, "Total", props.Text{Size: 11, Style: fontstyle.Bold}),
		text.NewCol(4, formatBRL(order.Total), props.Text{Size: 11, Style: fontstyle.Bold, Align: align.Right}),
	)

	if order.PackagingNeeded {
		m.AddRow(9, text.NewCol(12, "PARA VIAGEM (embalagem)", props.Text{Size: 11, Style: fontstyle.Bold}))
	}
	if note := strings.TrimSpace(order.Note); note != "" {
		m.AddRow(14, text.NewCol(12, "Obs: "+note, props.Text{Size: 10}))
	}

	doc, err := m.Generate()
	if err != nil {
		r.log.Error("receipt generation failed", zap.Int64("order_id", order.ID), zap.Error(err))
		return nil, err
	}
	return doc.GetBytes(), nil
}

func formatBRL(v decimal.Decimal) string {
	return "R$ " + strings.Replace(v.StringFixed(2), ".", ",", 1)
}
