package obs

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	HoldsTotal         *prometheus.CounterVec // result=created|replayed|unavailable|rejected
	ConfirmsTotal      *prometheus.CounterVec // result=confirmed|replayed|expired|conflict
	CancellationsTotal *prometheus.CounterVec // actor=owner|admin|system|moderation

	ExpiredHoldsTotal  prometheus.Counter
	ExpiredOffersTotal prometheus.Counter
	OffersMadeTotal    prometheus.Counter

	WaitlistDepth      prometheus.Gauge
	ActiveReservations prometheus.Gauge

	SweepDuration prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		HoldsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "slot_holds_total",
				Help: "Total hold attempts by result",
			},
			[]string{"result"},
		),
		ConfirmsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "slot_confirms_total",
				Help: "Total confirm attempts by result",
			},
			[]string{"result"},
		),
		CancellationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "slot_cancellations_total",
				Help: "Total reservation cancellations by actor",
			},
			[]string{"actor"},
		),
		ExpiredHoldsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slot_expired_holds_total",
			Help: "Holds reclaimed by the expiry sweeper",
		}),
		ExpiredOffersTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "waitlist_expired_offers_total",
			Help: "Waitlist offers that lapsed without acceptance",
		}),
		OffersMadeTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "waitlist_offers_total",
			Help: "Waitlist offers made by the cascade",
		}),
		WaitlistDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "waitlist_waiting_entries",
			Help: "Waitlist entries currently in waiting status",
		}),
		ActiveReservations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "slot_active_reservations",
			Help: "Reservations currently in an active status (held, confirmed, pending approval)",
		}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "slot_sweep_duration_seconds",
			Help:    "Duration of expiry sweeps",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
	}

	reg.MustRegister(
		m.HoldsTotal,
		m.ConfirmsTotal,
		m.CancellationsTotal,
		m.ExpiredHoldsTotal,
		m.ExpiredOffersTotal,
		m.OffersMadeTotal,
		m.WaitlistDepth,
		m.ActiveReservations,
		m.SweepDuration,
	)

	return m
}
