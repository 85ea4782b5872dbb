package findings

import "time"

// Finding is the terminal artifact of the pipeline: one classified candidate
// token and where it was found.
type Finding struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	Login     string    `json:"login,omitempty"`
	Outcome   string    `json:"outcome"`
	Cause     string    `json:"cause,omitempty"`
	RepoName  string    `json:"repo_name"`
	FilePath  string    `json:"file_path"`
	FileURL   string    `json:"file_url"`
	CreatedAt time.Time `json:"created_at"`
}
