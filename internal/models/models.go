package models

import "time"

type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
)

type User struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	FullName     string    `gorm:"not null" json:"fullName"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	Phone        string    `gorm:"uniqueIndex;not null" json:"phone"`
	Address      string    `json:"address"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Role         Role      `gorm:"type:varchar(16);not null;default:USER;index" json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type Passport struct {
	ID               int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name             string    `gorm:"not null" json:"name"`
	Model            string    `gorm:"not null" json:"model"`
	SerialPrefix     string    `gorm:"size:64;not null;index:idx_passports_prefix_range,priority:1" json:"serialPrefix"`
	FromSerialNumber int64     `gorm:"not null;index:idx_passports_prefix_range,priority:2" json:"fromSerialNumber"`
	ToSerialNumber   int64     `gorm:"not null" json:"toSerialNumber"`
	WarrantyMonths   int       `gorm:"not null" json:"warrantyMonths"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Covers reports whether the passport range admits the given prefix and number.
func (p Passport) Covers(prefix string, n int64) bool {
	return p.SerialPrefix == prefix && p.FromSerialNumber <= n && n <= p.ToSerialNumber
}

// Overlaps reports whether [from, to] intersects the passport range under the same prefix.
func (p Passport) Overlaps(prefix string, from, to int64) bool {
	return p.SerialPrefix == prefix && p.FromSerialNumber <= to && p.ToSerialNumber >= from
}

type Device struct {
	SerialNumber           string       `gorm:"primaryKey;size:128" json:"serialNumber"`
	PassportID             int64        `gorm:"not null;index" json:"passportId"`
	Passport               *Passport    `gorm:"constraint:OnDelete:RESTRICT" json:"passport,omitempty"`
	UserID                 int64        `gorm:"not null;index" json:"userId"`
	User                   *User        `gorm:"constraint:OnDelete:RESTRICT" json:"-"`
	PurchaseDate           Date         `gorm:"type:date;not null" json:"purchaseDate"`
	WarrantyExpirationDate Date         `gorm:"type:date;not null" json:"warrantyExpirationDate"`
	Renovations            []Renovation `gorm:"foreignKey:DeviceSerialNumber;references:SerialNumber" json:"renovations"`
	CreatedAt              time.Time    `json:"createdAt"`
}

type Renovation struct {
	ID                 int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	DeviceSerialNumber string    `gorm:"size:128;not null;index" json:"deviceSerialNumber"`
	Date               Date      `gorm:"type:date;not null" json:"renovationDate"`
	Description        string    `gorm:"not null" json:"description"`
	CreatedAt          time.Time `json:"createdAt"`
}

type Session struct {
	JTI       string     `gorm:"primaryKey;size:64" json:"jti"`
	UserID    int64      `gorm:"index;not null" json:"userId"`
	ExpiresAt time.Time  `gorm:"not null" json:"expiresAt"`
	RevokedAt *time.Time `json:"revokedAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

type AuditLog struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ActorID   *int64    `gorm:"index" json:"actorId,omitempty"`
	Action    string    `gorm:"not null" json:"action"`
	Subject   string    `json:"subject"`
	Metadata  Metadata  `gorm:"type:jsonb;default:'{}'::jsonb" json:"metadata"`
	CreatedAt time.Time `gorm:"index" json:"createdAt"`
}

// All lists the tables managed by AutoMigrate, in dependency order.
func All() []any {
	return []any{&User{}, &Passport{}, &Device{}, &Renovation{}, &Session{}, &AuditLog{}}
}
