// Package twitch implements the Helix API client used by the poller:
// a client-credentials broker plus batched read operations.
package twitch

// apiResponse is the common `{data: [...]}` envelope of Helix responses.
type apiResponse[T any] struct {
	Data []T `json:"data"`
}

// User is a Twitch user/broadcaster identity.
type User struct {
	ID              string `json:"id"`
	Login           string `json:"login"`
	DisplayName     string `json:"display_name"`
	ProfileImageURL string `json:"profile_image_url"`
}

// Stream is a currently-live broadcast.
type Stream struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	UserLogin    string `json:"user_login"`
	UserName     string `json:"user_name"`
	GameID       string `json:"game_id"`
	GameName     string `json:"game_name"`
	Title        string `json:"title"`
	ViewerCount  int    `json:"viewer_count"`
	StartedAt    string `json:"started_at"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// Channel carries the title/category of a channel, live or not.
// Needed because /streams omits offline channels entirely.
type Channel struct {
	BroadcasterID    string `json:"broadcaster_id"`
	BroadcasterLogin string `json:"broadcaster_login"`
	BroadcasterName  string `json:"broadcaster_name"`
	GameID           string `json:"game_id"`
	GameName         string `json:"game_name"`
	Title            string `json:"title"`
}

// Video is a VOD (archive recording).
type Video struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	UserLogin    string `json:"user_login"`
	Title        string `json:"title"`
	URL          string `json:"url"`
	CreatedAt    string `json:"created_at"`
	Duration     string `json:"duration"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// tokenResponse is the OAuth2 client-credentials grant response.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}
