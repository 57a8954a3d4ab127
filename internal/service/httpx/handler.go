// Package httpx — REST API каталога и заказов поверх chi.
package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ims/internal/domain"
	"github.com/vladislavdragonenkov/ims/internal/ratelimit"
	"github.com/vladislavdragonenkov/ims/internal/service/inventory"
)

// Catalog — операции каталога, доступные REST API.
type Catalog interface {
	Create(ctx context.Context, createdBy string, in inventory.CreateInput) (domain.Product, error)
	Get(ctx context.Context, id string) (domain.Product, error)
	LookupPublic(ctx context.Context, qrCode string) (domain.PublicProduct, error)
	LookupFull(ctx context.Context, qrCode string) (domain.Product, error)
	Update(ctx context.Context, actorID, id string, patch domain.ProductPatch) (domain.Product, error)
	Delete(ctx context.Context, actorID, id string) (bool, error)
}

// OrderEngine — оформление заказов и смена статуса.
type OrderEngine interface {
	PlaceOrder(ctx context.Context, buyerID string, lines []domain.OrderLineRequest) (domain.Order, error)
	UpdateStatus(ctx context.Context, orderID, status string) (domain.Order, error)
}

// Reader — чтение каталога и заказов с учётом роли.
type Reader interface {
	ListCatalog(ctx context.Context) ([]domain.Product, error)
	GetOrder(ctx context.Context, orderID string, principal domain.Principal) (domain.Order, error)
	ListOrders(ctx context.Context, principal domain.Principal) ([]domain.Order, error)
}

// Handler обслуживает маршруты /items и /orders.
type Handler struct {
	catalog Catalog
	engine  OrderEngine
	reader  Reader
	limiter ratelimit.Limiter
	logger  *log.Entry
}

// NewHandler создаёт обработчик. limiter может быть nil: публичный QR-поиск тогда не ограничен.
func NewHandler(catalog Catalog, engine OrderEngine, reader Reader, limiter ratelimit.Limiter, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.WithField("component", "inventory-http")
	}
	return &Handler{
		catalog: catalog,
		engine:  engine,
		reader:  reader,
		limiter: limiter,
		logger:  logger,
	}
}

// Register монтирует маршруты на роутер.
func (h *Handler) Register(r chi.Router) {
	r.Route("/items", func(r chi.Router) {
		r.With(rateLimit(h.limiter, h.logger)).Get("/qr/{token}", h.lookupPublic)

		r.Group(func(r chi.Router) {
			r.Use(requireRole())
			r.Get("/", h.listItems)
			r.Get("/{id}", h.getItem)
			r.Get("/lookup/{qr}", h.lookupFull)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireRole(domain.RoleOwner))
			r.Post("/", h.createItem)
			r.Put("/{id}", h.updateItem)
			r.Delete("/{id}", h.deleteItem)
		})
	})

	r.Route("/orders", func(r chi.Router) {
		r.With(requireRole(domain.RoleBuyer)).Post("/", h.placeOrder)
		r.With(requireRole()).Get("/", h.listOrders)
		r.With(requireRole()).Get("/{id}", h.getOrder)
		r.With(requireRole(domain.RoleOwner)).Patch("/{id}/status", h.updateOrderStatus)
	})
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	products, err := h.reader.ListCatalog(r.Context())
	if err != nil {
		h.fail(w, err, "list items")
		return
	}
	items := make([]itemDTO, 0, len(products))
	for _, p := range products {
		items = append(items, toItemDTO(p))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	product, err := h.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err, "get item")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"item": toItemDTO(product)})
}

func (h *Handler) lookupPublic(w http.ResponseWriter, r *http.Request) {
	product, err := h.catalog.LookupPublic(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.fail(w, err, "lookup item")
		return
	}
	writeJSON(w, http.StatusOK, toPublicItemDTO(product))
}

func (h *Handler) lookupFull(w http.ResponseWriter, r *http.Request) {
	product, err := h.catalog.LookupFull(r.Context(), chi.URLParam(r, "qr"))
	if err != nil {
		h.fail(w, err, "lookup item")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"item": toItemDTO(product)})
}

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFrom(r.Context())

	var req createItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	switch {
	case req.Name == nil:
		writeError(w, http.StatusBadRequest, "name is required")
		return
	case req.Category == nil:
		writeError(w, http.StatusBadRequest, "category is required")
		return
	case req.Quantity == nil:
		writeError(w, http.StatusBadRequest, "quantity is required")
		return
	case req.Price == nil:
		writeError(w, http.StatusBadRequest, "price is required")
		return
	}

	product, err := h.catalog.Create(r.Context(), principal.ActorID, inventory.CreateInput{
		Name:     *req.Name,
		Category: *req.Category,
		Quantity: *req.Quantity,
		Price:    *req.Price,
	})
	if err != nil {
		h.fail(w, err, "create item")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Item created successfully",
		"item":    toItemDTO(product),
	})
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFrom(r.Context())

	var req updateItemRequest
	if !decodeBody(w, r, &req) {
		return
	}

	product, err := h.catalog.Update(r.Context(), principal.ActorID, chi.URLParam(r, "id"), domain.ProductPatch{
		Name:     req.Name,
		Category: req.Category,
		Quantity: req.Quantity,
		Price:    req.Price,
	})
	if err != nil {
		h.fail(w, err, "update item")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Item updated successfully",
		"item":    toItemDTO(product),
	})
}

func (h *Handler) deleteItem(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFrom(r.Context())

	deleted, err := h.catalog.Delete(r.Context(), principal.ActorID, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err, "delete item")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "Item not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"message": "Item deleted successfully"})
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFrom(r.Context())

	var req placeOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "Order must contain at least one item")
		return
	}

	lines := make([]domain.OrderLineRequest, 0, len(req.Items))
	for _, item := range req.Items {
		lines = append(lines, domain.OrderLineRequest{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	order, err := h.engine.PlaceOrder(r.Context(), principal.ActorID, lines)
	if err != nil {
		h.fail(w, err, "place order")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Order placed successfully",
		"order":   toOrderDTO(order),
	})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFrom(r.Context())

	orders, err := h.reader.ListOrders(r.Context(), principal)
	if err != nil {
		h.fail(w, err, "list orders")
		return
	}
	out := make([]orderDTO, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderDTO(o))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"orders": out})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFrom(r.Context())

	order, err := h.reader.GetOrder(r.Context(), chi.URLParam(r, "id"), principal)
	if err != nil {
		h.fail(w, err, "get order")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"order": toOrderDTO(order)})
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Status == nil {
		writeError(w, http.StatusBadRequest, "Status is required")
		return
	}

	order, err := h.engine.UpdateStatus(r.Context(), chi.URLParam(r, "id"), *req.Status)
	if err != nil {
		h.fail(w, err, "update order status")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Order status updated successfully",
		"order":   toOrderDTO(order),
	})
}

// fail переводит доменную ошибку в HTTP-ответ по типу ошибки.
func (h *Handler) fail(w http.ResponseWriter, err error, operation string) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		h.logger.WithError(err).WithField("operation", operation).Error("request failed")
		writeError(w, code, "Failed to "+operation)
		return
	}

	if failure, ok := domain.AsStockFailure(err); ok {
		writeJSON(w, code, stockErrorDTO{
			Error:     err.Error(),
			ProductID: failure.ProductID,
			Available: failure.Available,
			Requested: failure.Requested,
			Applied:   failure.Applied,
		})
		return
	}

	var notFound *domain.NotFoundError
	if errors.As(err, &notFound) {
		switch notFound.Resource {
		case domain.ResourceProduct:
			writeError(w, code, "Item not found")
			return
		case domain.ResourceOrder:
			writeError(w, code, "Order not found")
			return
		}
	}
	writeError(w, code, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrStockConflict),
		errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if r.Body == nil || r.Body == http.NoBody {
		writeError(w, http.StatusBadRequest, "Request body is required")
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}
