package salesreport

import (
	"strconv"

	"go.uber.org/fx"
)

var Module = fx.Module("salesreport.service",
	fx.Provide(New),
)

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
