package http

// PublishNewsletterRequestDTO is the publish API payload. The idempotency
// key is caller-supplied so at-least-once client retries collapse into one
// logical publish.
type PublishNewsletterRequestDTO struct {
	Title          string `json:"title" validate:"required"`
	TextContent    string `json:"text_content" validate:"required"`
	HTMLContent    string `json:"html_content" validate:"required"`
	IdempotencyKey string `json:"idempotency_key" validate:"required"`
}
