package batch

import (
	"strings"
	"time"
)

// Profile holds the public, caller-supplied fields of a lab client.
type Profile struct {
	FullName    string `gorm:"not null;size:50;column:full_name" json:"fullName"`
	TeamName    string `gorm:"not null;size:50;column:team_name" json:"teamName"`
	CompanyName string `gorm:"not null;size:50;column:company_name" json:"companyName"`
	Location    string `gorm:"not null;size:50;column:location" json:"location"`
	CountryCode string `gorm:"not null;size:2;column:country_code" json:"countryCode"`
}

// Normalize trims every field and upper-cases the country code.
func (p Profile) Normalize() Profile {
	return Profile{
		FullName:    strings.TrimSpace(p.FullName),
		TeamName:    strings.TrimSpace(p.TeamName),
		CompanyName: strings.TrimSpace(p.CompanyName),
		Location:    strings.TrimSpace(p.Location),
		CountryCode: strings.ToUpper(strings.TrimSpace(p.CountryCode)),
	}
}

// Client is a registered lab identity, keyed by normalized email.
type Client struct {
	ID    int64  `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	Email string `gorm:"uniqueIndex;not null;size:100;column:email" json:"email"`
	Profile

	CreatedAt time.Time `gorm:"not null;column:created_on" json:"createdOn"`
	UpdatedAt time.Time `gorm:"not null;column:modified_on" json:"modifiedOn"`
}

func (Client) TableName() string { return "clients" }

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
