package dto

import "time"

// ContactRequest is a contact form submission from the public site
type ContactRequest struct {
	Name    string `json:"name" binding:"required,max=120"`
	Email   string `json:"email" binding:"required,email"`
	Subject string `json:"subject" binding:"max=200"`
	Message string `json:"message" binding:"required,max=5000"`
}

// OfferRequest creates a commercial offer
type OfferRequest struct {
	Title       string  `json:"title" binding:"required,max=200"`
	Description string  `json:"description"`
	Price       float64 `json:"price" binding:"gte=0"`
}

// ContentRequest replaces the body of a site content block
type ContentRequest struct {
	Title string `json:"title" binding:"required,max=200"`
	Body  string `json:"body"`
}

// PresenceResponse reports how many admins are connected to this instance
type PresenceResponse struct {
	OnlineCount int       `json:"onlineCount"`
	Timestamp   time.Time `json:"timestamp"`
}
