package handlers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/glowbeauty/internal/apperr"
	"github.com/example/glowbeauty/internal/config"
	"github.com/example/glowbeauty/internal/models"
	"github.com/example/glowbeauty/internal/routes"
	"github.com/example/glowbeauty/internal/services"
	"github.com/example/glowbeauty/internal/testutil"
)

type envelope struct {
	Success    bool            `json:"success"`
	Message    string          `json:"message"`
	Code       string          `json:"code"`
	Data       json.RawMessage `json:"data"`
	Pagination struct {
		TotalItems int64 `json:"total_items"`
	} `json:"pagination"`
}

func newApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()

	db := testutil.NewDB(t)
	cfg := &config.Config{
		JWTSecret:             testutil.Secret,
		TokenExpires:          time.Hour,
		ShippingFlatFee:       5.99,
		FreeShippingThreshold: 50,
		Currency:              "USD",
		RewardPointsPerUnit:   1,
	}

	app := fiber.New(fiber.Config{ErrorHandler: apperr.ErrorHandler})
	routes.Register(app, routes.Dependencies{
		DB:       db,
		Config:   cfg,
		Notifier: services.NewNotifier(services.NopPublisher{}, nil, cfg.Currency),
	})
	return app, db
}

func call(t *testing.T, app *fiber.App, method, path, token string, body any) (int, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("%s %s: decode response: %v", method, path, err)
	}
	return resp.StatusCode, env
}

func decode(t *testing.T, raw json.RawMessage, dst any) {
	t.Helper()
	if err := json.Unmarshal(raw, dst); err != nil {
		t.Fatalf("decode data: %v (%s)", err, raw)
	}
}

func shippingAddress() map[string]any {
	return map[string]any{
		"first_name":    "Ada",
		"last_name":     "Lovelace",
		"address_line1": "1 Main St",
		"city":          "London",
		"postal_code":   "N1 9GU",
		"country":       "UK",
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	app, db := newApp(t)

	body := map[string]any{
		"first_name": "Jane",
		"last_name":  "Doe",
		"email":      "jane@example.com",
		"password":   "secret123",
	}

	status, env := call(t, app, http.MethodPost, "/api/auth/register", "", body)
	if status != http.StatusCreated || !env.Success {
		t.Fatalf("first register: status %d, %+v", status, env)
	}
	var created struct {
		Token string `json:"token"`
	}
	decode(t, env.Data, &created)
	if created.Token == "" {
		t.Fatal("expected a token")
	}

	body["email"] = "JANE@example.com"
	status, env = call(t, app, http.MethodPost, "/api/auth/register", "", body)
	if status != http.StatusBadRequest || env.Success {
		t.Fatalf("duplicate register: status %d, %+v", status, env)
	}

	var count int64
	db.Model(&models.User{}).Where("email = ?", "jane@example.com").Count(&count)
	if count != 1 {
		t.Fatalf("expected 1 user, got %d", count)
	}
}

func TestRegisterValidation(t *testing.T) {
	app, _ := newApp(t)

	status, env := call(t, app, http.MethodPost, "/api/auth/register", "", map[string]any{
		"first_name": "Jane",
		"last_name":  "Doe",
		"email":      "not-an-email",
		"password":   "123",
	})
	if status != http.StatusBadRequest || env.Code != string(apperr.KindValidation) {
		t.Fatalf("status %d, %+v", status, env)
	}
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	app, db := newApp(t)
	user := testutil.CreateUser(t, db, "sleepy@example.com", models.RoleCustomer)

	status, _ := call(t, app, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email": user.Email, "password": "wrong-password",
	})
	if status != http.StatusUnauthorized {
		t.Fatalf("bad password: expected 401, got %d", status)
	}

	db.Model(&models.User{}).Where("id = ?", user.ID).Update("status", models.UserInactive)

	status, env := call(t, app, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email": user.Email, "password": "password123",
	})
	if status != http.StatusForbidden {
		t.Fatalf("inactive login: expected 403, got %d", status)
	}
	if len(env.Data) != 0 && string(env.Data) != "null" {
		t.Fatalf("inactive login leaked data: %s", env.Data)
	}
}

func TestBackOfficeRequiresStaff(t *testing.T) {
	app, db := newApp(t)
	customer := testutil.CreateUser(t, db, "shopper@example.com", models.RoleCustomer)
	admin := testutil.CreateUser(t, db, "boss@example.com", models.RoleAdmin)

	if status, _ := call(t, app, http.MethodGet, "/api/admin/dashboard", "", nil); status != http.StatusUnauthorized {
		t.Fatalf("anonymous: expected 401, got %d", status)
	}
	if status, _ := call(t, app, http.MethodGet, "/api/admin/dashboard", testutil.Token(t, customer), nil); status != http.StatusForbidden {
		t.Fatalf("customer: expected 403, got %d", status)
	}
	status, env := call(t, app, http.MethodGet, "/api/admin/dashboard", testutil.Token(t, admin), nil)
	if status != http.StatusOK || !env.Success {
		t.Fatalf("admin: status %d, %+v", status, env)
	}

	// Public product routes stay open while mutations are staff only.
	if status, _ := call(t, app, http.MethodGet, "/api/products", "", nil); status != http.StatusOK {
		t.Fatalf("public list: expected 200, got %d", status)
	}
	if status, _ := call(t, app, http.MethodPost, "/api/products", testutil.Token(t, customer), map[string]any{"name": "x"}); status != http.StatusForbidden {
		t.Fatalf("customer create product: expected 403, got %d", status)
	}
}

func TestPublicListingHidesInactiveProducts(t *testing.T) {
	app, db := newApp(t)
	admin := testutil.CreateUser(t, db, "boss@example.com", models.RoleAdmin)
	testutil.CreateProduct(t, db, "Visible Serum", 20, 5)
	hidden := testutil.CreateProduct(t, db, "Hidden Serum", 20, 5)
	db.Model(&models.Product{}).Where("id = ?", hidden.ID).Update("status", models.ProductInactive)

	_, env := call(t, app, http.MethodGet, "/api/products", "", nil)
	if env.Pagination.TotalItems != 1 {
		t.Fatalf("public listing: expected 1 product, got %d", env.Pagination.TotalItems)
	}

	_, env = call(t, app, http.MethodGet, "/api/products?status=inactive", testutil.Token(t, admin), nil)
	if env.Pagination.TotalItems != 1 {
		t.Fatalf("staff listing: expected 1 inactive product, got %d", env.Pagination.TotalItems)
	}
}

func TestCheckoutInsufficientStockRollsBack(t *testing.T) {
	app, db := newApp(t)
	plenty := testutil.CreateProduct(t, db, "Cleanser", 10, 10)
	scarce := testutil.CreateProduct(t, db, "Eye Cream", 30, 1)

	status, env := call(t, app, http.MethodPost, "/api/orders", "", map[string]any{
		"items": []map[string]any{
			{"product_id": plenty.ID, "quantity": 2},
			{"product_id": scarce.ID, "quantity": 2},
		},
		"shipping_address": shippingAddress(),
		"payment_method":   "card",
		"guest_email":      "guest@example.com",
	})
	if status != http.StatusBadRequest || env.Success {
		t.Fatalf("expected 400, got %d %+v", status, env)
	}

	var p models.Product
	db.First(&p, "id = ?", plenty.ID)
	if p.StockQuantity != 10 {
		t.Fatalf("stock changed despite rollback: %d", p.StockQuantity)
	}
	var orders int64
	db.Model(&models.Order{}).Count(&orders)
	if orders != 0 {
		t.Fatalf("expected no orders, got %d", orders)
	}
}

func TestCheckoutCouponBelowMinimumStillSucceeds(t *testing.T) {
	app, db := newApp(t)
	user := testutil.CreateUser(t, db, "buyer@example.com", models.RoleCustomer)
	product := testutil.CreateProduct(t, db, "Body Lotion", 20, 10)

	coupon := models.Coupon{
		Code:              "SAVE10",
		DiscountType:      models.DiscountPercentage,
		DiscountValue:     10,
		MinPurchaseAmount: 100,
		IsActive:          true,
	}
	if err := db.Create(&coupon).Error; err != nil {
		t.Fatalf("create coupon: %v", err)
	}

	status, env := call(t, app, http.MethodPost, "/api/orders", testutil.Token(t, user), map[string]any{
		"items":            []map[string]any{{"product_id": product.ID, "quantity": 2}},
		"shipping_address": shippingAddress(),
		"payment_method":   "cash_on_delivery",
		"coupon_code":      "save10",
	})
	if status != http.StatusCreated {
		t.Fatalf("expected 201, got %d %+v", status, env)
	}

	var totals struct {
		OrderNumber string  `json:"order_number"`
		Subtotal    float64 `json:"subtotal"`
		Discount    float64 `json:"discount_amount"`
		Shipping    float64 `json:"shipping_cost"`
		Total       float64 `json:"total"`
	}
	decode(t, env.Data, &totals)
	if totals.Subtotal != 40 || totals.Discount != 0 || totals.Shipping != 5.99 || totals.Total != 45.99 {
		t.Fatalf("unexpected totals %+v", totals)
	}
	if totals.OrderNumber == "" {
		t.Fatal("missing order number")
	}
}

func TestGuestOrderLookup(t *testing.T) {
	app, db := newApp(t)
	product := testutil.CreateProduct(t, db, "Face Mask", 60, 3)

	status, env := call(t, app, http.MethodPost, "/api/orders", "", map[string]any{
		"items":            []map[string]any{{"product_id": product.ID, "quantity": 1}},
		"shipping_address": shippingAddress(),
		"payment_method":   "paypal",
		"guest_email":      "guest@example.com",
	})
	if status != http.StatusCreated {
		t.Fatalf("guest checkout: %d %+v", status, env)
	}
	var placed struct {
		OrderNumber string  `json:"order_number"`
		Shipping    float64 `json:"shipping_cost"`
	}
	decode(t, env.Data, &placed)
	if placed.Shipping != 0 {
		t.Fatalf("expected free shipping above threshold, got %v", placed.Shipping)
	}

	path := "/api/orders/number/" + placed.OrderNumber
	if status, _ := call(t, app, http.MethodGet, path+"?email=guest@example.com", "", nil); status != http.StatusOK {
		t.Fatalf("lookup with matching email: %d", status)
	}
	if status, _ := call(t, app, http.MethodGet, path+"?email=someone@example.com", "", nil); status != http.StatusNotFound {
		t.Fatalf("lookup with wrong email: %d", status)
	}
}

func TestAddressDefaultIsUniquePerType(t *testing.T) {
	app, db := newApp(t)
	user := testutil.CreateUser(t, db, "home@example.com", models.RoleCustomer)
	token := testutil.Token(t, user)

	create := func(city string, isDefault bool) models.Address {
		body := shippingAddress()
		body["city"] = city
		body["type"] = "shipping"
		body["is_default"] = isDefault
		status, env := call(t, app, http.MethodPost, "/api/addresses", token, body)
		if status != http.StatusCreated {
			t.Fatalf("create address: %d %+v", status, env)
		}
		var a models.Address
		decode(t, env.Data, &a)
		return a
	}

	first := create("London", false)
	if !first.IsDefault {
		t.Fatal("first address of a type should become default")
	}
	second := create("Paris", true)

	defaults := func() []models.Address {
		var list []models.Address
		db.Where("user_id = ? AND type = ? AND is_default = ?", user.ID, models.AddressShipping, true).Find(&list)
		return list
	}
	if got := defaults(); len(got) != 1 || got[0].ID != second.ID {
		t.Fatalf("expected only the second address as default, got %+v", got)
	}

	status, _ := call(t, app, http.MethodPut, "/api/addresses/"+first.ID.String()+"/default", token, nil)
	if status != http.StatusOK {
		t.Fatalf("set default: %d", status)
	}
	if got := defaults(); len(got) != 1 || got[0].ID != first.ID {
		t.Fatalf("expected first address as default, got %+v", got)
	}

	status, _ = call(t, app, http.MethodDelete, "/api/addresses/"+first.ID.String(), token, nil)
	if status != http.StatusOK {
		t.Fatalf("delete: %d", status)
	}
	if got := defaults(); len(got) != 1 || got[0].ID != second.ID {
		t.Fatalf("expected remaining address promoted, got %+v", got)
	}
}

func TestBulkStockUpdate(t *testing.T) {
	app, db := newApp(t)
	admin := testutil.CreateUser(t, db, "boss@example.com", models.RoleAdmin)
	token := testutil.Token(t, admin)
	a := testutil.CreateProduct(t, db, "Shampoo", 8, 12)
	b := testutil.CreateProduct(t, db, "Conditioner", 9, 0)
	c := testutil.CreateProduct(t, db, "Hair Oil", 15, 4)

	status, env := call(t, app, http.MethodPut, "/api/stock/bulk", token, map[string]any{
		"updates": []map[string]any{
			{"product_id": a.ID, "stock_quantity": 0},
			{"product_id": b.ID, "stock_quantity": 25},
		},
	})
	if status != http.StatusOK {
		t.Fatalf("bulk update: %d %+v", status, env)
	}

	load := func(id any) models.Product {
		var p models.Product
		db.First(&p, "id = ?", id)
		return p
	}
	if p := load(a.ID); p.StockQuantity != 0 || p.Status != models.ProductOutOfStock {
		t.Fatalf("shampoo: stock=%d status=%s", p.StockQuantity, p.Status)
	}
	if p := load(b.ID); p.StockQuantity != 25 || p.Status != models.ProductActive {
		t.Fatalf("conditioner: stock=%d status=%s", p.StockQuantity, p.Status)
	}
	if p := load(c.ID); p.StockQuantity != 4 || p.Status != models.ProductActive {
		t.Fatalf("untouched product changed: stock=%d status=%s", p.StockQuantity, p.Status)
	}

	var movements int64
	db.Model(&models.StockMovement{}).Where("product_id IN ?", []any{a.ID, b.ID}).Count(&movements)
	if movements != 2 {
		t.Fatalf("expected 2 movements, got %d", movements)
	}

	status, _ = call(t, app, http.MethodPut, "/api/stock/bulk", token, map[string]any{
		"updates": []map[string]any{
			{"product_id": c.ID, "stock_quantity": 9},
			{"product_id": b.ID, "stock_quantity": -1},
		},
	})
	if status != http.StatusBadRequest {
		t.Fatalf("negative quantity: expected 400, got %d", status)
	}
	if p := load(c.ID); p.StockQuantity != 4 {
		t.Fatalf("batch was not rolled back: stock=%d", p.StockQuantity)
	}
}

func TestWishlistAddIsIdempotent(t *testing.T) {
	app, db := newApp(t)
	user := testutil.CreateUser(t, db, "fan@example.com", models.RoleCustomer)
	token := testutil.Token(t, user)
	product := testutil.CreateProduct(t, db, "Perfume", 80, 2)

	body := map[string]any{"product_id": product.ID}
	if status, _ := call(t, app, http.MethodPost, "/api/wishlist", token, body); status != http.StatusCreated {
		t.Fatalf("first add: %d", status)
	}
	if status, _ := call(t, app, http.MethodPost, "/api/wishlist", token, body); status != http.StatusOK {
		t.Fatalf("second add: %d", status)
	}

	status, _ := call(t, app, http.MethodPost, "/api/wishlist/"+product.ID.String()+"/move-to-cart", token, nil)
	if status != http.StatusOK {
		t.Fatalf("move to cart: %d", status)
	}

	var saved, cart int64
	db.Model(&models.WishlistItem{}).Where("user_id = ?", user.ID).Count(&saved)
	db.Model(&models.CartItem{}).Where("user_id = ?", user.ID).Count(&cart)
	if saved != 0 || cart != 1 {
		t.Fatalf("wishlist=%d cart=%d", saved, cart)
	}
}

func TestGuestCartMergesIntoUserCart(t *testing.T) {
	app, db := newApp(t)
	user := testutil.CreateUser(t, db, "merge@example.com", models.RoleCustomer)
	product := testutil.CreateProduct(t, db, "Sunscreen", 14, 5)

	add := httptest.NewRequest(http.MethodPost, "/api/cart/items",
		bytes.NewReader([]byte(`{"product_id":"`+product.ID.String()+`","quantity":4}`)))
	add.Header.Set("Content-Type", "application/json")
	add.Header.Set("X-Session-ID", "guest-session")
	resp, err := app.Test(add, -1)
	if err != nil {
		t.Fatalf("guest add: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("guest add: %d", resp.StatusCode)
	}

	if err := db.Create(&models.CartItem{UserID: &user.ID, ProductID: product.ID, Quantity: 3}).Error; err != nil {
		t.Fatalf("seed user cart: %v", err)
	}

	status, env := call(t, app, http.MethodPost, "/api/cart/merge", testutil.Token(t, user), map[string]any{"session_id": "guest-session"})
	if status != http.StatusOK {
		t.Fatalf("merge: %d %+v", status, env)
	}

	var line models.CartItem
	db.Where("user_id = ? AND product_id = ?", user.ID, product.ID).First(&line)
	if line.Quantity != 5 {
		t.Fatalf("merged quantity should be capped at stock, got %d", line.Quantity)
	}
	var guest int64
	db.Model(&models.CartItem{}).Where("session_id = ?", "guest-session").Count(&guest)
	if guest != 0 {
		t.Fatalf("guest cart not cleared: %d", guest)
	}
}

func TestHealth(t *testing.T) {
	app, _ := newApp(t)
	status, env := call(t, app, http.MethodGet, "/api/health", "", nil)
	if status != http.StatusOK || !env.Success {
		t.Fatalf("health: %d %+v", status, env)
	}
}

func TestSuspendedAccountIsRefused(t *testing.T) {
	app, db := newApp(t)
	customer := testutil.CreateUser(t, db, "shopper@example.com", models.RoleCustomer)
	manager := testutil.CreateUser(t, db, "manager@example.com", models.RoleManager)
	product := testutil.CreateProduct(t, db, "Lip Balm", 6, 10)
	customerToken := testutil.Token(t, customer)
	managerToken := testutil.Token(t, manager)

	order := map[string]any{
		"items":            []map[string]any{{"product_id": product.ID, "quantity": 1}},
		"shipping_address": shippingAddress(),
		"payment_method":   "card",
	}

	db.Model(&models.User{}).Where("id = ?", customer.ID).Update("status", models.UserSuspended)
	if status, _ := call(t, app, http.MethodPost, "/api/orders", customerToken, order); status != http.StatusForbidden {
		t.Fatalf("suspended checkout: expected 403, got %d", status)
	}
	var orders int64
	db.Model(&models.Order{}).Count(&orders)
	if orders != 0 {
		t.Fatalf("suspended customer placed %d orders", orders)
	}

	if status, _ := call(t, app, http.MethodGet, "/api/admin/dashboard", managerToken, nil); status != http.StatusOK {
		t.Fatalf("manager: expected 200, got %d", status)
	}
	db.Model(&models.User{}).Where("id = ?", manager.ID).Update("role", models.RoleCustomer)
	if status, _ := call(t, app, http.MethodGet, "/api/admin/dashboard", managerToken, nil); status != http.StatusForbidden {
		t.Fatalf("demoted manager: expected 403, got %d", status)
	}
	db.Model(&models.User{}).Where("id = ?", manager.ID).Updates(map[string]any{
		"role": models.RoleManager, "status": models.UserInactive,
	})
	if status, _ := call(t, app, http.MethodGet, "/api/stock", managerToken, nil); status != http.StatusForbidden {
		t.Fatalf("inactive manager: expected 403, got %d", status)
	}
}

func TestDeleteProductDeactivatesWhenOrdered(t *testing.T) {
	app, db := newApp(t)
	admin := testutil.CreateUser(t, db, "boss@example.com", models.RoleAdmin)
	token := testutil.Token(t, admin)
	ordered := testutil.CreateProduct(t, db, "Night Cream", 25, 5)
	unused := testutil.CreateProduct(t, db, "Day Cream", 22, 5)

	status, env := call(t, app, http.MethodPost, "/api/orders", "", map[string]any{
		"items":            []map[string]any{{"product_id": ordered.ID, "quantity": 1}},
		"shipping_address": shippingAddress(),
		"payment_method":   "card",
		"guest_email":      "guest@example.com",
	})
	if status != http.StatusCreated {
		t.Fatalf("place order: %d %+v", status, env)
	}

	var result struct {
		Deactivated bool `json:"deactivated"`
	}

	status, env = call(t, app, http.MethodDelete, "/api/products/"+ordered.ID.String(), token, nil)
	if status != http.StatusOK {
		t.Fatalf("delete ordered product: %d %+v", status, env)
	}
	decode(t, env.Data, &result)
	if !result.Deactivated {
		t.Fatal("ordered product should be deactivated, not deleted")
	}
	var kept models.Product
	if err := db.First(&kept, "id = ?", ordered.ID).Error; err != nil {
		t.Fatalf("ordered product was removed: %v", err)
	}
	if kept.Status != models.ProductInactive {
		t.Fatalf("ordered product status = %s", kept.Status)
	}

	status, env = call(t, app, http.MethodDelete, "/api/products/"+unused.ID.String(), token, nil)
	if status != http.StatusOK {
		t.Fatalf("delete unused product: %d %+v", status, env)
	}
	result.Deactivated = true
	decode(t, env.Data, &result)
	if result.Deactivated {
		t.Fatal("unreferenced product should be deleted")
	}
	var remaining int64
	db.Model(&models.Product{}).Where("id = ?", unused.ID).Count(&remaining)
	if remaining != 0 {
		t.Fatal("unreferenced product still stored")
	}

	if status, _ := call(t, app, http.MethodDelete, "/api/products/"+unused.ID.String(), token, nil); status != http.StatusNotFound {
		t.Fatalf("second delete: expected 404, got %d", status)
	}
}
