package handlers

import "github.com/gin-gonic/gin"

func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), AccessLog(), CORS())

	r.GET("/health", h.Health)
	r.POST("/predict", h.Predict)
	r.POST("/predict/tensor", h.PredictTensor)

	return r
}
