package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"washday/api/models"
	"washday/api/store"
)

type ServiceCatalog interface {
	ListServices(ctx context.Context) ([]models.Service, error)
	GetServiceBySlug(ctx context.Context, slug string) (*models.Service, error)
}

var _ ServiceCatalog = (*store.ServiceStore)(nil)

type ServiceHandlers struct {
	Catalog ServiceCatalog
}

func NewServiceHandlers(catalog ServiceCatalog) *ServiceHandlers {
	return &ServiceHandlers{Catalog: catalog}
}

func (h *ServiceHandlers) ListServices(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	services, err := h.Catalog.ListServices(ctx)
	if err != nil {
		log.Printf("Error listing services: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list services"})
		return
	}

	c.JSON(http.StatusOK, services)
}

func (h *ServiceHandlers) GetService(c *gin.Context) {
	slug := c.Param("slug")

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	service, err := h.Catalog.GetServiceBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, store.ErrServiceNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Service not found"})
			return
		}
		log.Printf("Error getting service %s: %v", slug, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get service"})
		return
	}

	c.JSON(http.StatusOK, service)
}
