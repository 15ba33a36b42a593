// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package controller

import (
	"github.com/prometheus/client_golang/prometheus"
)

type hintsMetrics struct {
	controllersCreated    prometheus.Counter
	controllersCancelled  prometheus.Counter
	publicationsAdmitted  prometheus.Counter
	publicationsRejected  prometheus.Counter
	gatheringsClosed      prometheus.Counter
	constructionsComplete prometheus.Counter
}

func newMetrics(registerer prometheus.Registerer) (*hintsMetrics, error) {
	m := &hintsMetrics{
		controllersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hints_controllers_created",
			Help: "Number of construction controllers created",
		}),
		controllersCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hints_controllers_cancelled",
			Help: "Number of construction controllers cancelled by supersession",
		}),
		publicationsAdmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hints_publications_admitted",
			Help: "Number of hint-key publications admitted after validation",
		}),
		publicationsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hints_publications_rejected",
			Help: "Number of hint-key publications rejected as invalid",
		}),
		gatheringsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hints_gatherings_closed",
			Help: "Number of gathering phases closed into aggregation",
		}),
		constructionsComplete: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hints_constructions_complete",
			Help: "Number of constructions completed with a preprocessed key set",
		}),
	}

	for _, collector := range []prometheus.Collector{
		m.controllersCreated,
		m.controllersCancelled,
		m.publicationsAdmitted,
		m.publicationsRejected,
		m.gatheringsClosed,
		m.constructionsComplete,
	} {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}
	return m, nil
}
