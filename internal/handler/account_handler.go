package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/DevNectorFoods/Email-Automation/internal/ingest"
	"github.com/DevNectorFoods/Email-Automation/internal/model"
	"github.com/DevNectorFoods/Email-Automation/internal/repository"
	"github.com/DevNectorFoods/Email-Automation/pkg/secrets"
)

type AccountHandler struct {
	accounts *repository.AccountRepository
	service  *ingest.Service
	box      *secrets.Box
}

func NewAccountHandler(accounts *repository.AccountRepository, service *ingest.Service, box *secrets.Box) *AccountHandler {
	return &AccountHandler{
		accounts: accounts,
		service:  service,
		box:      box,
	}
}

type accountRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required"`
	IMAPServer  string `json:"imap_server" binding:"required"`
	IMAPPort    int    `json:"imap_port"`
	SSL         *bool  `json:"ssl"`
	AccountType string `json:"account_type"`
}

func (req accountRequest) account() model.MailAccount {
	ssl := true
	if req.SSL != nil {
		ssl = *req.SSL
	}
	port := req.IMAPPort
	if port == 0 {
		port = 993
	}
	accountType := req.AccountType
	if accountType == "" {
		accountType = "imap"
	}
	return model.MailAccount{
		Email:       req.Email,
		Password:    req.Password,
		IMAPServer:  req.IMAPServer,
		IMAPPort:    port,
		SSL:         ssl,
		AccountType: accountType,
		IsActive:    true,
	}
}

// TestAccount handles POST /accounts/test. It logs into the mailbox and
// reports the outcome without persisting anything.
func (h *AccountHandler) TestAccount(c *gin.Context) {
	var req accountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.service.ValidateAccount(c.Request.Context(), req.account()); err != nil {
		c.JSON(http.StatusOK, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// CreateAccount handles POST /accounts. The mailbox must be reachable with
// the submitted credentials before anything is stored; the password is
// sealed on the way in.
func (h *AccountHandler) CreateAccount(c *gin.Context) {
	var req accountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	account := req.account()
	if err := h.service.ValidateAccount(c.Request.Context(), account); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "imap connection failed: " + err.Error()})
		return
	}

	sealed, err := h.box.Seal(account.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store credentials"})
		return
	}
	account.Password = sealed

	if err := h.accounts.Create(c.Request.Context(), &account); err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			c.JSON(http.StatusConflict, gin.H{"error": "account already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create account"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"account": account.View()})
}

// ListAccounts handles GET /accounts
func (h *AccountHandler) ListAccounts(c *gin.Context) {
	accounts, err := h.accounts.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list accounts"})
		return
	}

	views := make([]model.AccountView, 0, len(accounts))
	for _, a := range accounts {
		views = append(views, a.View())
	}
	c.JSON(http.StatusOK, gin.H{"accounts": views})
}
