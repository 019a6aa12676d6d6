package notification

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"

	"cart-discounts/internal/models"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

const expiryLayout = "02/01/2006"

// Message - готовое к отправке письмо.
type Message struct {
	To      string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

type itemView struct {
	Name     string
	Price    string
	ImageURL string
}

type emailView struct {
	Subject   string
	Greeting  string
	Code      string
	Percent   int
	ExpiresAt string
	Items     []itemView
	Total     string
	StoreName string
	StoreURL  string
}

// Renderer собирает письмо с кодом из встроенных шаблонов.
type Renderer struct {
	text      *texttemplate.Template
	html      *htmltemplate.Template
	storeName string
	storeURL  string
}

// NewRenderer разбирает встроенные шаблоны письма.
func NewRenderer(storeName, storeURL string) (*Renderer, error) {
	text, err := texttemplate.ParseFS(templateFS, "templates/discount_code.txt.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to parse text template: %w", err)
	}
	html, err := htmltemplate.ParseFS(templateFS, "templates/discount_code.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to parse html template: %w", err)
	}
	return &Renderer{
		text:      text,
		html:      html,
		storeName: storeName,
		storeURL:  storeURL,
	}, nil
}

// Subject возвращает тему письма для кода.
func (r *Renderer) Subject(code *models.DiscountCode) string {
	return fmt.Sprintf("🎁 ¡Tienes un descuento del %d%%! - %s", code.Percent, r.storeName)
}

// Render собирает текстовую и HTML-версии письма.
func (r *Renderer) Render(user *models.User, code *models.DiscountCode, items []*models.CartItem) (*Message, error) {
	view := emailView{
		Subject:   r.Subject(code),
		Greeting:  greeting(user),
		Code:      code.Code,
		Percent:   code.Percent,
		StoreName: r.storeName,
		StoreURL:  r.storeURL,
	}
	if code.ExpiresAt != nil {
		view.ExpiresAt = code.ExpiresAt.Format(expiryLayout)
	}

	for _, item := range items {
		if item.Product == nil {
			continue
		}
		iv := itemView{Name: item.Product.DisplayName(), ImageURL: item.Product.ImageURL}
		if item.Product.Price.Valid {
			iv.Price = item.Product.Price.Decimal.StringFixed(2)
		}
		view.Items = append(view.Items, iv)
	}
	if total := models.CartTotal(items); total.IsPositive() {
		view.Total = total.StringFixed(2)
	}

	var text, html bytes.Buffer
	if err := r.text.Execute(&text, view); err != nil {
		return nil, fmt.Errorf("failed to render text email: %w", err)
	}
	if err := r.html.Execute(&html, view); err != nil {
		return nil, fmt.Errorf("failed to render html email: %w", err)
	}

	return &Message{
		To:      user.Email,
		ToName:  user.InstagramAccount,
		Subject: view.Subject,
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}

func greeting(user *models.User) string {
	if user.InstagramAccount != "" {
		if user.InstagramAccount[0] == '@' {
			return user.InstagramAccount
		}
		return "@" + user.InstagramAccount
	}
	return user.Email
}
