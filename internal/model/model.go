package model

import "time"

const DefaultImageURL = "/static/img/default-giveaway.svg"

type Admin struct {
	ID           int       `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

type Giveaway struct {
	ID          int       `db:"id" json:"id"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	Prize       string    `db:"prize" json:"prize"`
	Image       string    `db:"image,omitempty" json:"image,omitempty"`
	StartDate   time.Time `db:"start_date" json:"start_date"`
	EndDate     time.Time `db:"end_date" json:"end_date"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// IsActive reports whether the giveaway accepts entries at the given moment.
func (g *Giveaway) IsActive(now time.Time) bool {
	return !now.Before(g.StartDate) && !now.After(g.EndDate)
}

// ImageURL returns the public path of the stored image, or the default
// asset when no image was uploaded.
func (g *Giveaway) ImageURL() string {
	if g.Image == "" {
		return DefaultImageURL
	}
	return "/static/uploads/" + g.Image
}

type Entry struct {
	ID         int       `db:"id" json:"id"`
	GiveawayID int       `db:"giveaway_id" json:"giveaway_id"`
	Name       string    `db:"name" json:"name"`
	Email      string    `db:"email" json:"email"`
	Phone      string    `db:"phone,omitempty" json:"phone,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
