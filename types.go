package auth

// User is the identity record for an authenticated account. The cached
// copy of this struct is advisory only and never carries a credential.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	UserType    string `json:"user_type,omitempty"`
	DateJoined  string `json:"date_joined,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	Address     string `json:"address,omitempty"`
	City        string `json:"city,omitempty"`
	Postcode    string `json:"postcode,omitempty"`
	Country     string `json:"country,omitempty"`
}

// User types returned by the API.
const (
	UserTypeFreelancer = "freelancer"
	UserTypeClient     = "client"
	UserTypeAdmin      = "admin"
)

// Tokens is the credential pair issued on login/register. The refresh
// token additionally travels as an HTTP-only cookie; only the access
// token is ever attached to requests by this client.
type Tokens struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

type AuthResponse struct {
	User   User   `json:"user"`
	Tokens Tokens `json:"tokens"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RegisterRequest struct {
	Email                 string `json:"email" validate:"required,email"`
	Password              string `json:"password" validate:"required,min=12"`
	PasswordConfirm       string `json:"password_confirm" validate:"required,eqfield=Password"`
	FirstName             string `json:"first_name,omitempty"`
	LastName              string `json:"last_name,omitempty"`
	UserType              string `json:"user_type,omitempty" validate:"omitempty,oneof=freelancer client"`
	PhoneNumber           string `json:"phone_number,omitempty"`
	Address               string `json:"address,omitempty"`
	City                  string `json:"city,omitempty"`
	Postcode              string `json:"postcode,omitempty"`
	Country               string `json:"country,omitempty"`
	TermsAccepted         bool   `json:"terms_accepted" validate:"required"`
	PrivacyPolicyAccepted bool   `json:"privacy_policy_accepted" validate:"required"`
	MarketingConsent      bool   `json:"marketing_consent"`
	AnalyticsConsent      bool   `json:"analytics_consent"`
}

type PasswordChangeRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=12,nefield=CurrentPassword"`
}

// ProfileUpdate is a partial identity update. Nil fields are left
// untouched by the server and by the optimistic local merge.
type ProfileUpdate struct {
	FirstName   *string `json:"first_name,omitempty"`
	LastName    *string `json:"last_name,omitempty"`
	PhoneNumber *string `json:"phone_number,omitempty"`
	Address     *string `json:"address,omitempty"`
	City        *string `json:"city,omitempty"`
	Postcode    *string `json:"postcode,omitempty"`
	Country     *string `json:"country,omitempty"`
}

// UserSession is one active device session as reported by the API.
type UserSession struct {
	ID        string `json:"id"`
	UserAgent string `json:"user_agent,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	LastSeen  string `json:"last_seen,omitempty"`
	Current   bool   `json:"current,omitempty"`
}

type refreshResponse struct {
	Access string `json:"access"`
}

// BankIDInitiateRequest optionally carries a personnummer hint for a
// faster same-device flow.
type BankIDInitiateRequest struct {
	PersonalNumber string `json:"personalNumber,omitempty"`
}

type BankIDInitiateResponse struct {
	OrderRef       string `json:"orderRef"`
	AutoStartToken string `json:"autoStartToken"`
	QRStartToken   string `json:"qrStartToken,omitempty"`
	QRStartSecret  string `json:"qrStartSecret,omitempty"`
}

type BankIDCollectResponse struct {
	Status   string  `json:"status"`
	Message  string  `json:"message,omitempty"`
	HintCode string  `json:"hintCode,omitempty"`
	User     *User   `json:"user,omitempty"`
	Tokens   *Tokens `json:"tokens,omitempty"`
}

// Collect statuses reported by the server.
const (
	CollectPending  = "pending"
	CollectComplete = "complete"
	CollectFailed   = "failed"
)
