package dto

import (
	"time"

	"github.com/wb-go/wbf/ginext"

	"giveaway/pkg/validator"
)

const (
	FieldIncorrect     = "FIELD_INCORRECT"
	ServiceUnavailable = "SERVICE_UNAVAILABLE"
	InternalError      = "Service is currently unavailable. Please try again later."

	GiveawayNotFound = "GIVEAWAY_NOT_FOUND"
	EntryNotFound    = "ENTRY_NOT_FOUND"
	GiveawayClosed   = "GIVEAWAY_CLOSED"
	EntryDuplicate   = "ENTRY_DUPLICATE"
	Unauthorized     = "UNAUTHORIZED"
	FileTooLarge     = "FILE_TOO_LARGE"
)

// DateTimeLayout is the wall-clock format accepted for giveaway dates.
// No timezone: values are interpreted in server local time.
const DateTimeLayout = "2006-01-02 15:04"

type SubmitEntryRequest struct {
	Name  string `form:"name" json:"name" validate:"required,min=2,max=100"`
	Email string `form:"email" json:"email" validate:"required,email,max=100"`
	Phone string `form:"phone" json:"phone" validate:"omitempty,max=20"`
}

type AdminLoginRequest struct {
	Username string `form:"username" json:"username" validate:"required,min=3,max=64"`
	Password string `form:"password" json:"password" validate:"required"`
}

// GiveawayFormRequest carries the text fields of the multipart
// create/edit form. Dates arrive as strings and are parsed by the
// service against DateTimeLayout.
type GiveawayFormRequest struct {
	Title       string `form:"title" json:"title" validate:"required,min=5,max=100"`
	Description string `form:"description" json:"description" validate:"required,min=10"`
	Prize       string `form:"prize" json:"prize" validate:"required,min=3,max=200"`
	StartDate   string `form:"start_date" json:"start_date" validate:"required"`
	EndDate     string `form:"end_date" json:"end_date" validate:"required"`
}

type GiveawayResponse struct {
	ID          int       `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Prize       string    `json:"prize"`
	ImageURL    string    `json:"image_url"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	IsActive    bool      `json:"is_active"`
	EntryCount  int       `json:"entry_count"`
	CreatedAt   time.Time `json:"created_at"`
}

type HomeResponse struct {
	Active []GiveawayResponse `json:"active"`
	Past   []GiveawayResponse `json:"past"`
}

type EntryResponse struct {
	ID         int       `json:"id"`
	GiveawayID int       `json:"giveaway_id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type ConfirmationResponse struct {
	Entry    EntryResponse    `json:"entry"`
	Giveaway GiveawayResponse `json:"giveaway"`
}

type GiveawayDetailResponse struct {
	Giveaway GiveawayResponse `json:"giveaway"`
	Entries  []EntryResponse  `json:"entries,omitempty"`
}

type AdminLoginResponse struct {
	AdminID  int    `json:"admin_id"`
	Username string `json:"username"`
	Next     string `json:"next,omitempty"`
}

// EntryReceivedMessage is published to RabbitMQ after a successful
// entry so the worker can send the confirmation email.
type EntryReceivedMessage struct {
	EntryID       int64  `json:"entry_id"`
	GiveawayID    int64  `json:"giveaway_id"`
	GiveawayTitle string `json:"giveaway_title"`
	Name          string `json:"name"`
	Email         string `json:"email"`
}

type Response struct {
	Status string `json:"status"`
	Error  *Error `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

type Error struct {
	Code   string                 `json:"code"`
	Desc   string                 `json:"desc"`
	Fields []validator.FieldError `json:"fields,omitempty"`
}

func BadResponseError(c *ginext.Context, code, desc string) {
	c.JSON(400, Response{
		Status: "error",
		Error: &Error{
			Code: code,
			Desc: desc,
		},
	})
}

// ValidationFailedError reports every failed rule so the caller can
// redisplay the form with all messages attached.
func ValidationFailedError(c *ginext.Context, fields []validator.FieldError) {
	c.JSON(400, Response{
		Status: "error",
		Error: &Error{
			Code:   FieldIncorrect,
			Desc:   "Validation failed",
			Fields: fields,
		},
	})
}

func InternalServerError(c *ginext.Context) {
	c.JSON(500, Response{
		Status: "error",
		Error: &Error{
			Code: ServiceUnavailable,
			Desc: InternalError,
		},
	})
}

func NotFoundError(c *ginext.Context, code, desc string) {
	c.JSON(404, Response{
		Status: "error",
		Error: &Error{
			Code: code,
			Desc: desc,
		},
	})
}

func GiveawayNotFoundError(c *ginext.Context) {
	NotFoundError(c, GiveawayNotFound, "Giveaway not found")
}

func EntryNotFoundError(c *ginext.Context) {
	NotFoundError(c, EntryNotFound, "Entry not found")
}

func GiveawayClosedError(c *ginext.Context) {
	BadResponseError(c, GiveawayClosed, "This giveaway has ended")
}

func EntryDuplicateError(c *ginext.Context) {
	BadResponseError(c, EntryDuplicate, "You have already entered this giveaway")
}

func InvalidCredentialsError(c *ginext.Context) {
	c.JSON(401, Response{
		Status: "error",
		Error: &Error{
			Code: Unauthorized,
			Desc: "Invalid username or password",
		},
	})
}

func FileTooLargeError(c *ginext.Context) {
	c.JSON(413, Response{
		Status: "error",
		Error: &Error{
			Code: FileTooLarge,
			Desc: "Uploaded file exceeds the allowed size",
		},
	})
}

func SuccessResponse(c *ginext.Context, data any) {
	c.JSON(200, Response{
		Status: "ok",
		Data:   data,
	})
}

func SuccessCreatedResponse(c *ginext.Context, data any) {
	c.JSON(201, Response{
		Status: "ok",
		Data:   data,
	})
}
