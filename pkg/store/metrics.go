package store

import (
	"time"

	"github.com/ethpandaops/trace-processor/pkg/common"
)

func observe(backend, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	common.StoreOperationDuration.WithLabelValues(backend, operation, status).Observe(time.Since(start).Seconds())
}
