package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Status represents one archived Mastodon post. The struct is populated once
// at the ingestion boundary (remote-response decoding or storage
// deserialization) and is never mutated afterwards: the archive is
// insert-only and a stored record is authoritative as of fetch time.
type Status struct {
	ID              int64       `gorm:"primaryKey;autoIncrement:false;column:id" json:"id"`
	URL             string      `gorm:"type:varchar(512);not null;column:url" json:"url"`
	Account         string      `gorm:"type:varchar(255);not null;column:account" json:"account"`
	SpoilerText     string      `gorm:"type:varchar(512);column:spoiler_text" json:"spoiler_text"`
	Content         string      `gorm:"type:text;not null;column:content" json:"content"`
	CreatedAt       time.Time   `gorm:"not null;column:created_at" json:"created_at"`
	RepliesCount    int         `gorm:"not null;default:0;column:replies_count" json:"replies_count"`
	ReblogsCount    int         `gorm:"not null;default:0;column:reblogs_count" json:"reblogs_count"`
	FavouritesCount int         `gorm:"not null;default:0;column:favourites_count" json:"favourites_count"`
	Attachments     Attachments `gorm:"type:text;column:attachments" json:"attachments,omitempty"`
}

// TableName specifies the table name for Status
func (Status) TableName() string {
	return "statuses"
}

// Attachment describes one media attachment on a status. Only the type is
// kept; the archive does not mirror media content.
type Attachment struct {
	Type string `json:"type"`
	URL  string `json:"url,omitempty"`
}

// Attachments is a JSON-encoded list of media attachments. Encoding as JSON
// keeps the stored form portable and self-describing rather than tied to any
// language-native serialization.
type Attachments []Attachment

// Value implements driver.Valuer for database storage.
func (a Attachments) Value() (driver.Value, error) {
	if len(a) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner for database retrieval.
func (a *Attachments) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	default:
		return fmt.Errorf("unsupported attachments column type %T", value)
	}
}
