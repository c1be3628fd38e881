package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
)

type HTTPHandler struct {
	orderService   *service.OrderService
	catalogService *service.CatalogService
	logger         *zap.Logger
}

func NewHTTPHandler(orderService *service.OrderService, catalogService *service.CatalogService, logger *zap.Logger) *HTTPHandler {
	return &HTTPHandler{
		orderService:   orderService,
		catalogService: catalogService,
		logger:         logger,
	}
}

func (h *HTTPHandler) Register(e *echo.Echo) {
	e.GET("/health", h.HealthCheck)

	api := e.Group("/api")
	api.POST("/orders", h.PlaceOrder)
	api.GET("/orders/:id", h.GetOrder)
	api.POST("/orders/:id/cancel", h.CancelOrder)

	api.POST("/products", h.CreateProduct)
	api.GET("/products/:id", h.GetProduct)
	api.PUT("/products/:id", h.UpdateProduct)
	api.DELETE("/products/:id", h.DeleteProduct)
	api.PUT("/products/:id/images", h.SetImages)
}

func (h *HTTPHandler) PlaceOrder(c echo.Context) error {
	var req PlaceOrderRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Message: "invalid request body"})
	}

	items := make([]service.ItemRequest, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, service.ItemRequest{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	order, err := h.orderService.PlaceOrder(c.Request().Context(), service.PlaceOrderRequest{
		RequestID: req.RequestID,
		UserID:    req.UserID,
		Items:     items,
	})
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, newOrderResponse(order))
}

func (h *HTTPHandler) GetOrder(c echo.Context) error {
	order, err := h.orderService.GetOrder(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, newOrderResponse(order))
}

func (h *HTTPHandler) CancelOrder(c echo.Context) error {
	var req CancelOrderRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Message: "invalid request body"})
	}

	order, err := h.orderService.CancelOrder(c.Request().Context(), c.Param("id"), req.Reason)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, newOrderResponse(order))
}

func (h *HTTPHandler) CreateProduct(c echo.Context) error {
	var req ProductRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Message: "invalid request body"})
	}

	product := req.toDomain("")
	if err := h.catalogService.CreateProduct(c.Request().Context(), product); err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, newProductResponse(product))
}

func (h *HTTPHandler) GetProduct(c echo.Context) error {
	product, err := h.catalogService.GetProduct(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, newProductResponse(product))
}

func (h *HTTPHandler) UpdateProduct(c echo.Context) error {
	var req ProductRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Message: "invalid request body"})
	}

	product := req.toDomain(c.Param("id"))
	if err := h.catalogService.UpdateProduct(c.Request().Context(), product); err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, newProductResponse(product))
}

func (h *HTTPHandler) DeleteProduct(c echo.Context) error {
	if err := h.catalogService.DeleteProduct(c.Request().Context(), c.Param("id")); err != nil {
		return h.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *HTTPHandler) SetImages(c echo.Context) error {
	var req []ImageRequest
	if err := (&echo.DefaultBinder{}).BindBody(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Message: "invalid request body"})
	}

	images := make([]domain.ProductImage, 0, len(req))
	for _, img := range req {
		images = append(images, domain.ProductImage{URL: img.URL, IsPrimary: img.IsPrimary})
	}

	stored, err := h.catalogService.SetImages(c.Request().Context(), c.Param("id"), images)
	if err != nil {
		return h.writeError(c, err)
	}

	resp := make([]ImageResponse, 0, len(stored))
	for _, img := range stored {
		resp = append(resp, ImageResponse{ID: img.ID, URL: img.URL, IsPrimary: img.IsPrimary, Position: img.Position})
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *HTTPHandler) HealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) writeError(c echo.Context, err error) error {
	status, _, message := classify(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", c.Request().Method),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
	}
	return c.JSON(status, ErrorResponse{Success: false, Message: message})
}
