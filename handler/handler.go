// Package handler exposes the session, cart and checkout stores to a UI
// process as a JSON HTTP surface.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"storefront/api"
	models "storefront/model"
	"storefront/service"
)

// Handler is the HTTP layer over the storefront services.
type Handler struct {
	session  service.SessionService
	cart     service.CartService
	checkout service.CheckoutService
	orders   service.OrderService
	catalog  service.CatalogService

	autoSubmitDelay time.Duration
	refreshWindow   time.Duration
	log             logrus.FieldLogger
}

// Options holds the presentation settings of the handler.
type Options struct {
	// AutoSubmitDelay is how long the payment page waits before posting
	// the gateway form.
	AutoSubmitDelay time.Duration
	// RefreshWindow is reported to the UI as needs_refresh when the access
	// token expires within it.
	RefreshWindow time.Duration
	Logger        logrus.FieldLogger
}

// NewHandler returns a Handler instance
func NewHandler(session service.SessionService, cart service.CartService, checkout service.CheckoutService,
	orders service.OrderService, catalog service.CatalogService, opts Options) *Handler {
	if opts.AutoSubmitDelay <= 0 {
		opts.AutoSubmitDelay = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Handler{
		session:         session,
		cart:            cart,
		checkout:        checkout,
		orders:          orders,
		catalog:         catalog,
		autoSubmitDelay: opts.AutoSubmitDelay,
		refreshWindow:   opts.RefreshWindow,
		log:             opts.Logger.WithField("component", "http"),
	}
}

// RegisterRoutes registers all routes on the provided router
func (h *Handler) RegisterRoutes(r *mux.Router) {
	// Session
	r.HandleFunc("/session", h.GetSession).Methods("GET")
	r.HandleFunc("/session/login", h.Login).Methods("POST")
	r.HandleFunc("/session/register", h.Register).Methods("POST")
	r.HandleFunc("/session/logout", h.Logout).Methods("POST")
	r.HandleFunc("/session/refresh", h.Refresh).Methods("POST")
	r.HandleFunc("/session/profile", h.UpdateProfile).Methods("PUT")
	r.HandleFunc("/session/password", h.ChangePassword).Methods("POST")

	// Cart
	r.HandleFunc("/cart", h.GetCart).Methods("GET")
	r.HandleFunc("/cart/items/{productId:[0-9]+}", h.AddToCart).Methods("POST")
	r.HandleFunc("/cart/items/{itemId:[0-9]+}", h.UpdateCartItem).Methods("PUT")
	r.HandleFunc("/cart/items/{itemId:[0-9]+}", h.RemoveFromCart).Methods("DELETE")

	// Checkout
	r.HandleFunc("/checkout", h.BeginCheckout).Methods("POST")
	r.HandleFunc("/checkout", h.GetCheckout).Methods("GET")
	r.HandleFunc("/checkout/information", h.SubmitInformation).Methods("POST")
	r.HandleFunc("/checkout/payment-method", h.SelectPaymentMethod).Methods("POST")
	r.HandleFunc("/checkout/back", h.CheckoutBack).Methods("POST")
	r.HandleFunc("/checkout/commit", h.CommitCheckout).Methods("POST")
	r.HandleFunc("/checkout/payment", h.PaymentPage).Methods("GET")
	r.HandleFunc("/checkout/abandon", h.AbandonCheckout).Methods("POST")
	r.HandleFunc("/checkout/success/{orderId:[0-9]+}", h.PaymentSuccess).Methods("GET")
	r.HandleFunc("/checkout/failure/{orderId:[0-9]+}", h.PaymentFailure).Methods("GET")

	// Orders
	r.HandleFunc("/orders", h.ListOrders).Methods("GET")
	r.HandleFunc("/orders/{orderId:[0-9]+}", h.GetOrder).Methods("GET")

	// Products
	r.HandleFunc("/products", h.ListProducts).Methods("GET")
	r.HandleFunc("/products/{productId:[0-9]+}", h.GetProduct).Methods("GET")
	r.HandleFunc("/products/{productId:[0-9]+}/reviews", h.AddReview).Methods("POST")
}

// --- request / response shapes ---

type sessionResp struct {
	models.Session
	NeedsRefresh bool `json:"needs_refresh"`
}

type quantityReq struct {
	Quantity int `json:"quantity"`
}

type paymentMethodReq struct {
	PaymentMethod string `json:"payment_method"`
	CardName      string `json:"card_name,omitempty"`
	CardNumber    string `json:"card_number,omitempty"`
	CardExpiry    string `json:"card_expiry,omitempty"`
	CardCVV       string `json:"card_cvv,omitempty"`
}

type checkoutResp struct {
	models.CheckoutState
	PaymentMethod string `json:"payment_method"`
	// PaymentPage is set while a gateway handoff is pending.
	PaymentPage string `json:"payment_page,omitempty"`
}

type errorResp struct {
	Error        string              `json:"error"`
	Fields       map[string][]string `json:"fields,omitempty"`
	RequiresAuth bool                `json:"requires_auth,omitempty"`
	Redirect     string              `json:"redirect,omitempty"`
}

// --- helpers ---
func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResp{Error: msg})
}

// writeServiceErr maps a service error onto a status code.
func (h *Handler) writeServiceErr(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *api.Error
	switch {
	case errors.Is(err, service.ErrRedirectToCart):
		writeJSON(w, http.StatusConflict, errorResp{Error: err.Error(), Redirect: "/cart"})
	case errors.As(err, &apiErr):
		resp := errorResp{Error: apiErr.Message, Fields: apiErr.Fields, RequiresAuth: apiErr.RequiresAuth}
		if apiErr.RequiresAuth {
			resp.Redirect = "/login"
		}
		writeJSON(w, statusFor(apiErr), resp)
	case errors.Is(err, service.ErrUnauthenticated):
		writeJSON(w, http.StatusUnauthorized, errorResp{Error: err.Error(), RequiresAuth: true, Redirect: "/login"})
	case errors.Is(err, service.ErrNotInitialized):
		writeErr(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidTransition), errors.Is(err, service.ErrSessionChanged):
		writeErr(w, http.StatusConflict, err.Error())
	default:
		h.log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
		writeErr(w, http.StatusInternalServerError, "internal error")
	}
}

func statusFor(e *api.Error) int {
	switch e.Kind {
	case api.KindAuthentication:
		return http.StatusUnauthorized
	case api.KindValidation:
		return http.StatusBadRequest
	case api.KindNetwork:
		return http.StatusBadGateway
	default:
		if e.Status >= 400 && e.Status < 500 {
			return e.Status
		}
		return http.StatusUnprocessableEntity
	}
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		writeErr(w, http.StatusBadRequest, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) sessionResponse(s models.Session) sessionResp {
	resp := sessionResp{Session: s}
	if s.Authenticated() && h.refreshWindow > 0 {
		resp.NeedsRefresh = h.session.NeedsRefresh(h.refreshWindow)
	}
	return resp
}

func checkoutResponse(st models.CheckoutState) checkoutResp {
	resp := checkoutResp{CheckoutState: st}
	if st.PaymentMethod != nil {
		resp.PaymentMethod = st.PaymentMethod.Code()
	}
	if st.Step == models.StepProcessing && st.PaymentArtifact != nil {
		resp.PaymentPage = "/checkout/payment"
	}
	return resp
}

// --- Session ---

// GetSession handles GET /session
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sessionResponse(h.session.Snapshot()))
}

// Login handles POST /session/login
// body: { "username": "...", "password": "..." }
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !decode(w, r, &req) {
		return
	}
	s, err := h.session.Login(r.Context(), req)
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.sessionResponse(s))
}

// Register handles POST /session/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.session.Register(r.Context(), req); err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "registered"})
}

// Logout handles POST /session/logout. It always succeeds.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.session.Logout()
	writeJSON(w, http.StatusOK, h.sessionResponse(h.session.Snapshot()))
}

// Refresh handles POST /session/refresh
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	s, err := h.session.Refresh(r.Context())
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.sessionResponse(s))
}

// UpdateProfile handles PUT /session/profile
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req models.ProfileUpdate
	if !decode(w, r, &req) {
		return
	}
	p, err := h.session.UpdateProfile(r.Context(), req)
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ChangePassword handles POST /session/password
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req models.PasswordChange
	if !decode(w, r, &req) {
		return
	}
	if err := h.session.ChangePassword(r.Context(), req); err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "password changed"})
}

// --- Cart ---

// GetCart handles GET /cart. ?refresh=1 refetches from the backend first.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("refresh") != "" {
		if err := h.cart.Fetch(r.Context()); err != nil {
			h.writeServiceErr(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, h.cart.Snapshot())
}

// AddToCart handles POST /cart/items/{productId}
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "productId")
	if !ok {
		return
	}
	msg, err := h.cart.AddItem(r.Context(), id)
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"message": msg, "cart": h.cart.Snapshot()})
}

// UpdateCartItem handles PUT /cart/items/{itemId}
// body: { "quantity": 2 }
func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "itemId")
	if !ok {
		return
	}
	var req quantityReq
	if !decode(w, r, &req) {
		return
	}
	if err := h.cart.UpdateQuantity(r.Context(), id, req.Quantity); err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.cart.Snapshot())
}

// RemoveFromCart handles DELETE /cart/items/{itemId}
func (h *Handler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "itemId")
	if !ok {
		return
	}
	if err := h.cart.RemoveItem(r.Context(), id); err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.cart.Snapshot())
}

// --- Checkout ---

// BeginCheckout handles POST /checkout
func (h *Handler) BeginCheckout(w http.ResponseWriter, r *http.Request) {
	st, err := h.checkout.Begin(r.Context())
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, checkoutResponse(st))
}

// GetCheckout handles GET /checkout
func (h *Handler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	st, err := h.checkout.State()
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, checkoutResponse(st))
}

// SubmitInformation handles POST /checkout/information
func (h *Handler) SubmitInformation(w http.ResponseWriter, r *http.Request) {
	var req models.ShippingInfo
	if !decode(w, r, &req) {
		return
	}
	st, err := h.checkout.SubmitInformation(req)
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, checkoutResponse(st))
}

// SelectPaymentMethod handles POST /checkout/payment-method
// body: { "payment_method": "esewa" | "card" | "cod", ... }
func (h *Handler) SelectPaymentMethod(w http.ResponseWriter, r *http.Request) {
	var req paymentMethodReq
	if !decode(w, r, &req) {
		return
	}
	method, err := models.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{
			Error:  err.Error(),
			Fields: map[string][]string{"payment_method": {"Select esewa, card or cod."}},
		})
		return
	}
	if _, isCard := method.(models.Card); isCard {
		method = models.Card{Name: req.CardName, Number: req.CardNumber, Expiry: req.CardExpiry, CVV: req.CardCVV}
	}
	st, err := h.checkout.SelectPaymentMethod(method)
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, checkoutResponse(st))
}

// CheckoutBack handles POST /checkout/back
func (h *Handler) CheckoutBack(w http.ResponseWriter, r *http.Request) {
	st, err := h.checkout.Back()
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, checkoutResponse(st))
}

// CommitCheckout handles POST /checkout/commit. A failed commit leaves
// the checkout at the payment step.
func (h *Handler) CommitCheckout(w http.ResponseWriter, r *http.Request) {
	st, err := h.checkout.Commit(r.Context())
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, checkoutResponse(st))
}

// AbandonCheckout handles POST /checkout/abandon. Form posts from the
// payment page are redirected to the cart.
func (h *Handler) AbandonCheckout(w http.ResponseWriter, r *http.Request) {
	h.checkout.Abandon()
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		http.Redirect(w, r, "/cart", http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"redirect": "/cart"})
}

// PaymentSuccess handles GET /checkout/success/{orderId}
func (h *Handler) PaymentSuccess(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "orderId")
	if !ok {
		return
	}
	order, err := h.checkout.ConfirmPayment(r.Context(), id)
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// PaymentFailure handles GET /checkout/failure/{orderId}
func (h *Handler) PaymentFailure(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "orderId")
	if !ok {
		return
	}
	order, err := h.checkout.FailPayment(r.Context(), id)
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// --- Orders ---

// ListOrders handles GET /orders
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.List(r.Context())
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// GetOrder handles GET /orders/{orderId}
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "orderId")
	if !ok {
		return
	}
	order, err := h.orders.Get(r.Context(), id)
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// --- Products ---

// ListProducts handles GET /products?query=...&page=...
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			writeErr(w, http.StatusBadRequest, "page must be a positive integer")
			return
		}
		page = n
	}
	ps, err := h.catalog.Products(r.Context(), r.URL.Query().Get("query"), page)
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

// GetProduct handles GET /products/{productId}
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "productId")
	if !ok {
		return
	}
	p, err := h.catalog.Product(r.Context(), id)
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// AddReview handles POST /products/{productId}/reviews
// body: { "rating": 5, "comment": "..." }
func (h *Handler) AddReview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "productId")
	if !ok {
		return
	}
	var req models.Review
	if !decode(w, r, &req) {
		return
	}
	if err := h.catalog.AddReview(r.Context(), id, req); err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "review added"})
}
