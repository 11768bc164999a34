package users

import "time"

// User is a registered account. PasswordHash never leaves this package;
// read paths expose Summary instead.
type User struct {
	ID           string    `gorm:"column:id;primaryKey;size:190;not null"`
	Name         string    `gorm:"column:name;size:320;not null"`
	Email        string    `gorm:"column:email;size:320;not null;uniqueIndex"`
	PasswordHash string    `gorm:"column:password_hash;size:120;not null"`
	Role         string    `gorm:"column:role;size:32;not null;default:user"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (User) TableName() string {
	return "users"
}

// Summary is the credential-free projection returned on document read paths.
type Summary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Summary returns the display projection for the user.
func (u User) Summary() Summary {
	return Summary{ID: u.ID, Name: u.Name, Email: u.Email}
}
