package model

type UserRole string

const (
	Coach  UserRole = "coach"
	Client UserRole = "client"
)

func (r UserRole) Valid() bool {
	return r == Coach || r == Client
}

// swagger:model User
type User struct {
	UUIDBase
	Name     string   `gorm:"size:100;not null" json:"name"`
	Email    string   `gorm:"size:100;uniqueIndex;not null" json:"email"`
	Password string   `gorm:"size:100;not null" json:"-"`
	Role     UserRole `gorm:"size:20;not null;default:'client'" json:"role"`
}

func (User) TableName() string {
	return "users"
}
