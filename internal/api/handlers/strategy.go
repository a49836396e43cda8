package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"trading-backtest/internal/api/models"
	"trading-backtest/internal/strategy"
)

// ListStrategies handles GET /api/v1/strategies
func ListStrategies(c *gin.Context) {
	catalog := strategy.Catalog()
	strategies := make([]models.StrategyInfo, 0, len(catalog))
	for _, info := range catalog {
		params := make([]models.ParameterInfo, 0, len(info.Parameters))
		for _, p := range info.Parameters {
			params = append(params, models.ParameterInfo{
				Name:        p.Name,
				Type:        p.Type,
				Description: p.Description,
				Default:     p.Default,
			})
		}
		strategies = append(strategies, models.StrategyInfo{
			Name:        info.Name,
			Description: info.Description,
			Parameters:  params,
		})
	}
	c.JSON(http.StatusOK, gin.H{"strategies": strategies})
}
