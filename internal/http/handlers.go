package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"stockledger/internal/domain"
	"stockledger/internal/ledger"
	"stockledger/internal/logging"
	"stockledger/internal/service"
)

// ConfirmHeader carries the secret re-entered for a mutation: the admin
// password, or the operator's own password when posting a transaction.
const ConfirmHeader = "X-Confirm-Password"

const actorKey = "actor"

type Server struct {
	engine *gin.Engine
	inv    *service.InventoryService
}

func NewServer(inv *service.InventoryService, log logrus.FieldLogger) *Server {
	r := gin.New()
	r.Use(logging.Middleware(log), gin.Recovery())
	s := &Server{engine: r, inv: inv}
	s.registerRoutes()
	return s
}

func (s *Server) Engine() *gin.Engine { return s.engine }

func (s *Server) registerRoutes() {
	// Swagger UI
	s.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := s.engine.Group("/api/v1")
	v1.POST("/sessions", s.login)

	authed := v1.Group("", s.requireSession)
	{
		authed.DELETE("/sessions", s.logout)
		authed.GET("/warehouses", s.listWarehouses)
		authed.GET("/inventory", s.getInventory)

		products := authed.Group("/products")
		products.GET("", s.listProducts)
		products.POST("", s.createProduct)
		products.PUT(":id", s.updateProduct)
		products.DELETE(":id", s.deleteProduct)

		users := authed.Group("/users")
		users.GET("", s.listUsers)
		users.POST("", s.createUser)
		users.PUT(":id", s.updateUser)
		users.DELETE(":id", s.deleteUser)

		txs := authed.Group("/transactions")
		txs.GET("", s.listTransactions)
		txs.POST("", s.createTransaction)
		txs.DELETE(":id", s.deleteTransaction)
	}
}

// requireSession resolves the bearer token into an actor.
func (s *Server) requireSession(c *gin.Context) {
	token, ok := bearerToken(c.GetHeader("Authorization"))
	if !ok {
		abortWithError(c, domain.Errorf(domain.KindAuthentication, "login required"))
		return
	}
	sess, err := s.inv.Session(token)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.Set(actorKey, sess.Actor)
	c.Next()
}

func bearerToken(h string) (string, bool) {
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(h[len(prefix):]), true
}

func actorFrom(c *gin.Context) domain.Actor {
	a, _ := c.Get(actorKey)
	actor, _ := a.(domain.Actor)
	return actor
}

func confirmation(c *gin.Context) string { return c.GetHeader(ConfirmHeader) }

// Session handlers

// @Summary Log in
// @Description Supply either admin_password, or user_id with password.
// @Tags sessions
// @Accept json
// @Produce json
// @Param input body domain.Credentials true "Credentials"
// @Success 201 {object} domain.Session
// @Failure 400 {object} errorResponse
// @Failure 401 {object} errorResponse
// @Router /sessions [post]
func (s *Server) login(c *gin.Context) {
	var req domain.Credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.Errorf(domain.KindInvalidCredentials, "invalid json"))
		return
	}
	sess, err := s.inv.Login(c, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

// @Summary Log out
// @Tags sessions
// @Security Bearer
// @Success 204
// @Failure 401 {object} errorResponse
// @Router /sessions [delete]
func (s *Server) logout(c *gin.Context) {
	token, _ := bearerToken(c.GetHeader("Authorization"))
	if err := s.inv.Logout(c, token); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Reports

// @Summary List warehouses
// @Tags inventory
// @Security Bearer
// @Produce json
// @Success 200 {array} domain.Warehouse
// @Router /warehouses [get]
func (s *Server) listWarehouses(c *gin.Context) {
	c.JSON(http.StatusOK, s.inv.Warehouses())
}

type inventoryResp struct {
	Products   []domain.ProductStock   `json:"products"`
	Warehouses []domain.WarehouseTotal `json:"warehouses"`
	Total      int64                   `json:"total"`
}

// @Summary Current stock per product and warehouse
// @Tags inventory
// @Security Bearer
// @Produce json
// @Success 200 {object} inventoryResp
// @Router /inventory [get]
func (s *Server) getInventory(c *gin.Context) {
	totals := s.inv.WarehouseTotals()
	c.JSON(http.StatusOK, inventoryResp{
		Products:   ledger.Sorted(s.inv.Inventory()),
		Warehouses: totals,
		Total:      ledger.GrandTotal(totals),
	})
}

// Product handlers

// @Summary List products
// @Tags products
// @Security Bearer
// @Produce json
// @Param q query string false "Name contains"
// @Param include_deleted query bool false "Include deleted products"
// @Success 200 {array} domain.Product
// @Router /products [get]
func (s *Server) listProducts(c *gin.Context) {
	all, err := parseFlag(c.Query("include_deleted"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.inv.Products(service.ProductFilter{Query: c.Query("q"), IncludeDeleted: all}))
}

type productReq struct {
	Name string `json:"name"`
}

// @Summary Create product
// @Tags products
// @Security Bearer
// @Accept json
// @Produce json
// @Param X-Confirm-Password header string true "Admin password"
// @Param input body productReq true "Product"
// @Success 201 {object} domain.Product
// @Failure 400 {object} errorResponse
// @Failure 403 {object} errorResponse
// @Failure 409 {object} errorResponse
// @Router /products [post]
func (s *Server) createProduct(c *gin.Context) {
	var req productReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errInvalidJSON)
		return
	}
	p, err := s.inv.AddProduct(c, actorFrom(c), req.Name, confirmation(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// @Summary Rename product
// @Tags products
// @Security Bearer
// @Accept json
// @Produce json
// @Param id path string true "Product ID"
// @Param X-Confirm-Password header string true "Admin password"
// @Param input body productReq true "Update"
// @Success 200 {object} domain.Product
// @Failure 400 {object} errorResponse
// @Failure 404 {object} errorResponse
// @Failure 409 {object} errorResponse
// @Router /products/{id} [put]
func (s *Server) updateProduct(c *gin.Context) {
	var req productReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errInvalidJSON)
		return
	}
	p, err := s.inv.UpdateProduct(c, actorFrom(c), c.Param("id"), req.Name, confirmation(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary Delete product
// @Description Writes off remaining stock, records a DELETE marker and hides the product.
// @Tags products
// @Security Bearer
// @Produce json
// @Param id path string true "Product ID"
// @Param X-Confirm-Password header string true "Admin password"
// @Success 200 {array} domain.Transaction
// @Failure 404 {object} errorResponse
// @Router /products/{id} [delete]
func (s *Server) deleteProduct(c *gin.Context) {
	entries, err := s.inv.DeleteProduct(c, actorFrom(c), c.Param("id"), confirmation(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

// User handlers

// @Summary List users
// @Tags users
// @Security Bearer
// @Produce json
// @Param include_deleted query bool false "Include deleted users"
// @Success 200 {array} domain.User
// @Router /users [get]
func (s *Server) listUsers(c *gin.Context) {
	all, err := parseFlag(c.Query("include_deleted"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.inv.Users(all))
}

type createUserReq struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// @Summary Create user
// @Tags users
// @Security Bearer
// @Accept json
// @Produce json
// @Param X-Confirm-Password header string true "Admin password"
// @Param input body createUserReq true "User"
// @Success 201 {object} domain.User
// @Failure 400 {object} errorResponse
// @Failure 409 {object} errorResponse
// @Router /users [post]
func (s *Server) createUser(c *gin.Context) {
	var req createUserReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errInvalidJSON)
		return
	}
	u, err := s.inv.AddUser(c, actorFrom(c), req.Name, req.Password, confirmation(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

type updateUserReq struct {
	Name     *string `json:"name"`
	Password *string `json:"password"`
}

// @Summary Update user
// @Tags users
// @Security Bearer
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param X-Confirm-Password header string true "Admin password"
// @Param input body updateUserReq true "Fields to change"
// @Success 200 {object} domain.User
// @Failure 400 {object} errorResponse
// @Failure 404 {object} errorResponse
// @Failure 409 {object} errorResponse
// @Router /users/{id} [put]
func (s *Server) updateUser(c *gin.Context) {
	var req updateUserReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errInvalidJSON)
		return
	}
	patch := service.UserPatch{Name: req.Name, Password: req.Password}
	u, err := s.inv.UpdateUser(c, actorFrom(c), c.Param("id"), patch, confirmation(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// @Summary Delete user
// @Tags users
// @Security Bearer
// @Param id path string true "User ID"
// @Param X-Confirm-Password header string true "Admin password"
// @Success 204
// @Failure 404 {object} errorResponse
// @Failure 409 {object} errorResponse
// @Router /users/{id} [delete]
func (s *Server) deleteUser(c *gin.Context) {
	if err := s.inv.DeleteUser(c, actorFrom(c), c.Param("id"), confirmation(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Transaction handlers

// @Summary List transactions, newest first
// @Tags transactions
// @Security Bearer
// @Produce json
// @Param product_id query string false "Product ID"
// @Param from query string false "Start, RFC 3339 or YYYY-MM-DD"
// @Param to query string false "End, RFC 3339 or YYYY-MM-DD (whole day)"
// @Success 200 {array} domain.Transaction
// @Failure 400 {object} errorResponse
// @Router /transactions [get]
func (s *Server) listTransactions(c *gin.Context) {
	f := service.TransactionFilter{ProductID: c.Query("product_id")}
	var err error
	if f.From, err = parseBound(c.Query("from"), false); err != nil {
		writeError(c, err)
		return
	}
	if f.To, err = parseBound(c.Query("to"), true); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.inv.Transactions(f))
}

// parseFlag reads an optional boolean query parameter.
func parseFlag(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, domain.Errorf(domain.KindInvalidInput, "invalid boolean %q", v)
	}
	return b, nil
}

// parseBound accepts RFC 3339 or a bare date; a bare end date covers the whole day.
func parseBound(v string, end bool) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	d, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, domain.Errorf(domain.KindInvalidInput, "invalid date %q", v)
	}
	if end {
		d = d.Add(24*time.Hour - time.Nanosecond)
	}
	return d, nil
}

type createTransactionReq struct {
	ProductID   string                 `json:"product_id"`
	WarehouseID string                 `json:"warehouse_id"`
	UserID      string                 `json:"user_id"`
	Type        domain.TransactionType `json:"type"`
	Quantity    int64                  `json:"quantity"`
	Description string                 `json:"description"`
}

// @Summary Record a stock movement
// @Tags transactions
// @Security Bearer
// @Accept json
// @Produce json
// @Param X-Confirm-Password header string true "Admin password, or the operator's own password"
// @Param input body createTransactionReq true "Movement"
// @Success 201 {object} domain.Transaction
// @Failure 400 {object} errorResponse
// @Failure 403 {object} errorResponse
// @Failure 404 {object} errorResponse
// @Router /transactions [post]
func (s *Server) createTransaction(c *gin.Context) {
	var req createTransactionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errInvalidJSON)
		return
	}
	in := service.NewTransaction{
		ProductID:   req.ProductID,
		WarehouseID: req.WarehouseID,
		UserID:      req.UserID,
		Type:        domain.TransactionType(strings.ToUpper(string(req.Type))),
		Quantity:    req.Quantity,
		Description: req.Description,
	}
	t, err := s.inv.AddTransaction(c, actorFrom(c), in, confirmation(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

// @Summary Delete a transaction
// @Description Appends a compensating entry (reverse mode) or removes the row (hard mode).
// @Tags transactions
// @Security Bearer
// @Produce json
// @Param id path string true "Transaction ID"
// @Param X-Confirm-Password header string true "Admin password"
// @Success 200 {object} domain.Transaction
// @Success 204
// @Failure 400 {object} errorResponse
// @Failure 404 {object} errorResponse
// @Router /transactions/{id} [delete]
func (s *Server) deleteTransaction(c *gin.Context) {
	rev, err := s.inv.DeleteTransaction(c, actorFrom(c), c.Param("id"), confirmation(c))
	if err != nil {
		writeError(c, err)
		return
	}
	if rev == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, rev)
}

type errorResponse struct {
	Error string      `json:"error"`
	Kind  domain.Kind `json:"kind"`
}

var errInvalidJSON = domain.Errorf(domain.KindInvalidInput, "invalid json")

func writeError(c *gin.Context, err error) {
	c.JSON(mapErrorToStatus(err), errorResponse{Error: domain.MessageOf(err), Kind: domain.KindOf(err)})
}

func abortWithError(c *gin.Context, err error) {
	writeError(c, err)
	c.Abort()
}

func mapErrorToStatus(err error) int {
	switch domain.KindOf(err) {
	case domain.KindAuthentication:
		return http.StatusUnauthorized
	case domain.KindAuthorization:
		return http.StatusForbidden
	case domain.KindInvalidInput, domain.KindInvalidCredentials, domain.KindNoChanges:
		return http.StatusBadRequest
	case domain.KindInsufficientStock:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindDuplicateName, domain.KindLastUser:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
