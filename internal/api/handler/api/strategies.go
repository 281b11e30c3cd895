package api

import (
	"net/http"

	"github.com/newthinker/tpsl/internal/api/response"
	"github.com/newthinker/tpsl/internal/indicator"
	"github.com/newthinker/tpsl/internal/strategy"
)

// StrategyInfo describes a registered strategy.
type StrategyInfo struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Params      strategy.Params  `json:"params"`
	Indicators  []indicator.Spec `json:"indicators"`
}

// StrategiesHandler lists registered strategies.
type StrategiesHandler struct {
	registry *strategy.Registry
}

func NewStrategiesHandler(registry *strategy.Registry) *StrategiesHandler {
	return &StrategiesHandler{registry: registry}
}

func (h *StrategiesHandler) List(w http.ResponseWriter, r *http.Request) {
	all := h.registry.GetAll()
	out := make([]StrategyInfo, 0, len(all))
	for _, s := range all {
		out = append(out, StrategyInfo{
			Name:        s.Name(),
			Description: s.Description(),
			Params:      s.Params(),
			Indicators:  s.Indicators(),
		})
	}
	response.JSON(w, http.StatusOK, out)
}
