package domain

import "time"

type Unit string

const (
	UnitPiece Unit = "unit"
	UnitBulk  Unit = "bulk"
)

// ParseUnit accepts the wire names of a unit; anything else is reported as invalid.
func ParseUnit(raw string) (Unit, bool) {
	switch Unit(raw) {
	case UnitPiece, UnitBulk:
		return Unit(raw), true
	default:
		return "", false
	}
}

type Product struct {
	Code              string `json:"code"`
	Name              string `json:"name"`
	UnitPrice         int64  `json:"unit_price"`
	BulkPrice         int64  `json:"bulk_price,omitempty"`
	BulkQuantityLabel string `json:"bulk_quantity_label,omitempty"`
	Stock             int    `json:"stock"`
}

type CartLine struct {
	ProductCode  string `json:"product_code"`
	Quantity     int    `json:"quantity"`
	SelectedUnit Unit   `json:"selected_unit"`
}

type PromotionRule struct {
	ID             string    `json:"id"`
	ProductCode    string    `json:"product_code"`
	PromoCategory  string    `json:"promo_category,omitempty"`
	MinQuantity    int       `json:"min_quantity"`
	DiscountAmount int64     `json:"discount_amount"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
}

type PaymentStatus string

const (
	PaymentEmpty        PaymentStatus = "empty"
	PaymentInsufficient PaymentStatus = "insufficient"
	PaymentExact        PaymentStatus = "exact"
	PaymentOverpaid     PaymentStatus = "overpaid"
)

type PaymentState struct {
	Status           PaymentStatus `json:"status"`
	AmountDue        int64         `json:"amount_due"`
	DifferenceAmount int64         `json:"difference_amount"`
	Message          string        `json:"message"`
}

type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

type TransactionLine struct {
	ProductCode      string `json:"product_code"`
	Name             string `json:"name"`
	Quantity         int    `json:"quantity"`
	UnitPriceApplied int64  `json:"unit_price_applied"`
	UnitLabel        string `json:"unit_label"`
	Unit             Unit   `json:"unit"`
}

// Transaction is the finalized sale. ID is assigned by the persistence side.
type Transaction struct {
	ID             string            `json:"id"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
	CashierID      string            `json:"cashier_id"`
	CashierName    string            `json:"cashier_name,omitempty"`
	Lines          []TransactionLine `json:"lines"`
	Subtotal       int64             `json:"subtotal"`
	Discount       int64             `json:"discount"`
	Total          int64             `json:"total"`
	AmountTendered int64             `json:"amount_tendered"`
	ChangeGiven    int64             `json:"change_given"`
	CreatedAt      time.Time         `json:"created_at"`
}

// TransactionPayload is what a terminal sends on submit. ProductCodes,
// Quantities and Units are index-aligned.
type TransactionPayload struct {
	ProductCodes   []string `json:"product_codes" validate:"required,min=1,dive,required"`
	Quantities     []int    `json:"quantities" validate:"required,min=1,dive,min=1"`
	Units          []string `json:"units" validate:"required,min=1,dive,oneof=unit bulk"`
	UserID         string   `json:"user_id" validate:"required"`
	Discount       int64    `json:"discount" validate:"min=0"`
	AmountTendered int64    `json:"amount_tendered" validate:"min=0"`
	IdempotencyKey string   `json:"idempotency_key" validate:"required,max=128"`
}

type TransactionReceipt struct {
	TransactionID string    `json:"transaction_id"`
	Subtotal      int64     `json:"subtotal"`
	Discount      int64     `json:"discount"`
	Total         int64     `json:"total"`
	ChangeGiven   int64     `json:"change_given"`
	Duplicate     bool      `json:"duplicate"`
	CreatedAt     time.Time `json:"created_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username    string
	DisplayName string
	Password    string
	Role        string
	Active      bool
	CreatedAt   time.Time
}

type CashierCreateRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

type CashierUser struct {
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name,omitempty"`
	Role        string    `json:"role"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type HardwareReceipt struct {
	TransactionID string `json:"transaction_id"`
	EscposBase64  string `json:"escpos_base64"`
	PreviewText   string `json:"preview_text"`
	FileName      string `json:"file_name"`
}

const (
	RoleCashier = "cashier"
	RoleAdmin   = "admin"
)
