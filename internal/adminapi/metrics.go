package adminapi

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cast"
	"github.com/talkincode/wabothub/internal/webserver"
	"github.com/talkincode/wabothub/pkg/metrics"
	"go.uber.org/zap"
)

func registerMetricsRoutes() {
	webserver.ApiGET("/metrics/:name", getMetricSeries)
}

// getMetricSeries returns the stored datapoints for one metric, scoped
// to the caller's tenant. Defaults to the last 24 hours; start/end
// query parameters take unix seconds.
func getMetricSeries(c echo.Context) error {
	tenantKey, err := requireTenant(c)
	if err != nil {
		return err
	}

	name := c.Param("name")
	end := time.Now().Unix()
	start := end - 24*3600
	if v := c.QueryParam("start"); v != "" {
		start = cast.ToInt64(v)
	}
	if v := c.QueryParam("end"); v != "" {
		end = cast.ToInt64(v)
	}

	points, err := metrics.Select(name, start, end, metrics.TenantLabel(tenantKey))
	if err != nil {
		// tstorage reports an empty window as an error; serve it as an
		// empty series
		zap.L().Debug("metric select empty",
			zap.String("metric", name), zap.Error(err))
		return ok(c, []interface{}{})
	}
	return ok(c, points)
}
