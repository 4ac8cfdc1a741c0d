package models

import "time"

// ============================================================
// User Model
// ============================================================

type User struct {
	ID        string    `json:"id"`
	Login     string    `json:"login"`
	Password  string    `json:"-"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// ============================================================
// Assets
// ============================================================

// Asset - загруженный пользователем файл; Src подставляется в Object.Src.
type Asset struct {
	Name        string    `json:"name"`
	Src         string    `json:"src"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	HumanSize   string    `json:"human_size"`
	Width       int       `json:"width,omitempty"`
	Height      int       `json:"height,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Font struct {
	Family string `json:"family"`
	File   string `json:"file,omitempty"`
	Custom bool   `json:"custom"`
}
