package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vbilous/contactbook/internal/contacts"
	"github.com/vbilous/contactbook/internal/domain"
	"github.com/vbilous/contactbook/internal/http/middleware"
)

// ContactHandler exposes the address book. Every route requires
// authentication; ownership scoping happens in the service.
type ContactHandler struct {
	Contacts *contacts.Service
}

// NewContactHandler constructs the handler.
func NewContactHandler(contactsService *contacts.Service) *ContactHandler {
	return &ContactHandler{Contacts: contactsService}
}

type contactRequest struct {
	Name     string  `json:"name"`
	Surname  string  `json:"surname"`
	Email    string  `json:"email"`
	Phone    string  `json:"phone"`
	Birthday *string `json:"birthday"`
	Notes    string  `json:"notes"`
}

func (r contactRequest) toDomain() (domain.Contact, error) {
	contact := domain.Contact{
		Name:    r.Name,
		Surname: r.Surname,
		Email:   r.Email,
		Phone:   r.Phone,
		Notes:   r.Notes,
	}
	if r.Birthday != nil && *r.Birthday != "" {
		day, err := parseDate(*r.Birthday)
		if err != nil {
			return domain.Contact{}, err
		}
		contact.Birthday = &day
	}
	return contact, nil
}

// Create adds a contact.
func (h *ContactHandler) Create(c *gin.Context) {
	user, ok := middleware.GetCurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "error_description": "Authentication required."})
		return
	}

	var req contactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid payload."})
		return
	}
	contact, err := req.toDomain()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Birthday must be formatted YYYY-MM-DD."})
		return
	}

	created, err := h.Contacts.Create(c.Request.Context(), user.ID, contact)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, created)
}

// List returns the user's contacts, optionally filtered by ?q=.
func (h *ContactHandler) List(c *gin.Context) {
	user, ok := middleware.GetCurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "error_description": "Authentication required."})
		return
	}

	filter := domain.ContactFilter{
		Query:  c.Query("q"),
		Limit:  queryInt(c, "limit", 50),
		Offset: queryInt(c, "offset", 0),
	}

	list, err := h.Contacts.List(c.Request.Context(), user.ID, filter)
	if err != nil {
		respondError(c, err)
		return
	}
	if list == nil {
		list = []domain.Contact{}
	}

	c.JSON(http.StatusOK, list)
}

// Get returns one contact.
func (h *ContactHandler) Get(c *gin.Context) {
	user, ok := middleware.GetCurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "error_description": "Authentication required."})
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid contact id."})
		return
	}

	contact, err := h.Contacts.Get(c.Request.Context(), user.ID, id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, contact)
}

// Update replaces a contact's fields.
func (h *ContactHandler) Update(c *gin.Context) {
	user, ok := middleware.GetCurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "error_description": "Authentication required."})
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid contact id."})
		return
	}

	var req contactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid payload."})
		return
	}
	contact, err := req.toDomain()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Birthday must be formatted YYYY-MM-DD."})
		return
	}
	contact.ID = id

	updated, err := h.Contacts.Update(c.Request.Context(), user.ID, contact)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, updated)
}

// Delete removes a contact.
func (h *ContactHandler) Delete(c *gin.Context) {
	user, ok := middleware.GetCurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "error_description": "Authentication required."})
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid contact id."})
		return
	}

	if err := h.Contacts.Delete(c.Request.Context(), user.ID, id); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// UpcomingBirthdays lists contacts with a birthday in the next ?days= days.
func (h *ContactHandler) UpcomingBirthdays(c *gin.Context) {
	user, ok := middleware.GetCurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "error_description": "Authentication required."})
		return
	}

	list, err := h.Contacts.UpcomingBirthdays(c.Request.Context(), user.ID, queryInt(c, "days", 7))
	if err != nil {
		respondError(c, err)
		return
	}
	if list == nil {
		list = []domain.Contact{}
	}

	c.JSON(http.StatusOK, list)
}

func parseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}

func queryInt(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
