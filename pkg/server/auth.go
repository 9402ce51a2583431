package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Identity is the result of verifying an auth ticket: a stable player
// identifier and a display name.
type Identity struct {
	ID   string
	Name string
}

// ErrInvalidTicket is returned when the identity provider rejects the
// presented ticket.
var ErrInvalidTicket = errors.New("server: invalid auth ticket")

// IdentityVerifier validates an opaque auth ticket. Implementations
// are external collaborators; the core only consumes this interface.
type IdentityVerifier interface {
	Verify(ctx context.Context, ticket string) (Identity, error)
}

// MockVerifier accepts tickets of the form "mock:<id>:<name>". Used in
// tests and local development.
type MockVerifier struct{}

// Verify implements IdentityVerifier.
func (MockVerifier) Verify(_ context.Context, ticket string) (Identity, error) {
	parts := strings.SplitN(ticket, ":", 3)
	if len(parts) != 3 || parts[0] != "mock" || parts[1] == "" {
		return Identity{}, ErrInvalidTicket
	}
	return Identity{ID: parts[1], Name: parts[2]}, nil
}

// SteamVerifier validates session tickets against the Steam Web API.
type SteamVerifier struct {
	APIKey string
	AppID  string
	Client *http.Client
}

const steamAuthURL = "https://api.steampowered.com/ISteamUserAuth/AuthenticateUserTicket/v1/"

// Verify implements IdentityVerifier against AuthenticateUserTicket.
func (v *SteamVerifier) Verify(ctx context.Context, ticket string) (Identity, error) {
	client := v.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}

	q := url.Values{}
	q.Set("key", v.APIKey)
	q.Set("appid", v.AppID)
	q.Set("ticket", ticket)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, steamAuthURL+"?"+q.Encode(), nil)
	if err != nil {
		return Identity{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("steam auth request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Identity{}, fmt.Errorf("steam auth: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		Response struct {
			Params struct {
				Result  string `json:"result"`
				SteamID string `json:"steamid"`
			} `json:"params"`
			Error *struct {
				ErrorCode int    `json:"errorcode"`
				ErrorDesc string `json:"errordesc"`
			} `json:"error"`
		} `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Identity{}, fmt.Errorf("steam auth decode: %w", err)
	}
	if body.Response.Error != nil || body.Response.Params.Result != "OK" {
		return Identity{}, ErrInvalidTicket
	}

	// Steam tickets carry no display name; the id doubles as the name
	// until the client provides a persona update.
	return Identity{ID: body.Response.Params.SteamID, Name: body.Response.Params.SteamID}, nil
}
