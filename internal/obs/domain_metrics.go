package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// TransactionsTotal counts register transactions by type and outcome.
	TransactionsTotal *prometheus.CounterVec
	// StockRejectionsTotal counts carts aborted for insufficient stock.
	StockRejectionsTotal prometheus.Counter
	// CouponRedemptionsTotal counts committed transactions that consumed a coupon.
	CouponRedemptionsTotal prometheus.Counter
	// LateFeeCentsTotal accumulates late fees charged at rental check-in.
	LateFeeCentsTotal prometheus.Counter
	// LowStockAlertsTotal counts low-stock alerts raised after commits.
	LowStockAlertsTotal prometheus.Counter
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		TransactionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Count of register transactions by type and result.",
		}, []string{"type", "result"})
		StockRejectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_rejections_total",
			Help:      "Transactions aborted because inventory was insufficient.",
		})
		CouponRedemptionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coupon_redemptions_total",
			Help:      "Committed transactions that consumed a coupon.",
		})
		LateFeeCentsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "late_fee_cents_total",
			Help:      "Late fees charged at rental check-in, in cents.",
		})
		LowStockAlertsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "low_stock_alerts_total",
			Help:      "Low-stock alerts raised after committed transactions.",
		})
		reg.MustRegister(
			TransactionsTotal,
			StockRejectionsTotal,
			CouponRedemptionsTotal,
			LateFeeCentsTotal,
			LowStockAlertsTotal,
		)
	})
}
