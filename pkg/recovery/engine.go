package recovery

import (
	"github.com/mwantia/gotape/pkg/db/store"
	"github.com/mwantia/gotape/pkg/faults"
	"github.com/mwantia/gotape/pkg/log"
	"github.com/mwantia/gotape/pkg/tape"
)

// Progress carries incremental status for recovery operations.
type Progress struct {
	Stage string `json:"stage"`
	Entry string `json:"entry,omitempty"`
	Done  int64  `json:"done,omitempty"`
	Total int64  `json:"total,omitempty"`
}

type ProgressFunc func(Progress)

func (fn ProgressFunc) emit(p Progress) {
	if fn != nil {
		fn(p)
	}
}

// Engine reads archives back from tape. Diagnostic operations report
// read failures as structured findings rather than errors; a device
// held by another operation is refused up front. Only a missing
// external tool fails construction.
type Engine struct {
	catalog store.CatalogStore
	tapes   *tape.Manager
	log     log.LoggerService
}

func NewEngine(catalog store.CatalogStore, tapes *tape.Manager, logger log.LoggerService) (*Engine, error) {
	tools := tapes.Tools()
	if tools == nil || tools.Tar == "" || tools.DD == "" {
		return nil, faults.Dependency("recovery", "tar and dd are required for recovery operations")
	}
	return &Engine{
		catalog: catalog,
		tapes:   tapes,
		log:     logger.Named("recovery"),
	}, nil
}
