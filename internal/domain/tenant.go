package domain

import "time"

// Tenant status values
const (
	TenantEnabled  = "enabled"
	TenantDisabled = "disabled"
)

// BotTenant a tenant account that may own at most one live messaging session
type BotTenant struct {
	ID        int64     `json:"id,string" form:"id"`        // Primary key ID
	TenantKey string    `json:"tenant_key" form:"tenant_key" gorm:"uniqueIndex"` // Opaque tenant identifier used by the registry
	Name      string    `json:"name" form:"name"`           // Display name
	Secret    string    `json:"-" form:"secret"`            // bcrypt hash of the API secret
	Status    string    `json:"status" form:"status"`       // enabled/disabled
	LastLogin time.Time `json:"last_login"`                 // Last API login time
	Remark    string    `json:"remark" form:"remark"`       // Remark
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName Specify table name
func (BotTenant) TableName() string {
	return "bot_tenant"
}

// BotProfile per-tenant reply behavior for the response pipeline
type BotProfile struct {
	ID           int64     `json:"id,string" form:"id"`                   // Primary key ID
	TenantKey    string    `json:"tenant_key" form:"tenant_key" gorm:"index"` // Owning tenant
	SystemPrompt string    `json:"system_prompt" form:"system_prompt"`    // Completion system prompt
	Model        string    `json:"model" form:"model"`                    // Completion model override
	Temperature  float32   `json:"temperature" form:"temperature"`        // Completion temperature
	Greeting     string    `json:"greeting" form:"greeting"`              // Optional first-contact greeting
	Fallback     string    `json:"fallback" form:"fallback"`              // Apology text sent when the pipeline fails
	Enabled      bool      `json:"enabled" form:"enabled"`                // Profile active flag
	Remark       string    `json:"remark" form:"remark"`                  // Remark
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName Specify table name
func (BotProfile) TableName() string {
	return "bot_profile"
}

// ChatTurn one inbound message and the reply produced for it
type ChatTurn struct {
	ID        int64     `json:"id,string" gorm:"primaryKey"`       // Snowflake ID
	TenantKey string    `json:"tenant_key" gorm:"index"`           // Owning tenant
	ChatJID   string    `json:"chat_jid"`                          // Remote chat address
	Inbound   string    `json:"inbound"`                           // Inbound message text
	Reply     string    `json:"reply"`                             // Reply text sent back
	Model     string    `json:"model"`                             // Model that produced the reply
	LatencyMs int64     `json:"latency_ms"`                        // Pipeline latency in milliseconds
	Failed    bool      `json:"failed"`                            // True when the fallback text was used
	CreatedAt time.Time `json:"created_at"`
}

// TableName Specify table name
func (ChatTurn) TableName() string {
	return "chat_turn"
}
