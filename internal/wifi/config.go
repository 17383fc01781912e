// Package wifi keeps the diagnostic access point advertised.
package wifi

import (
	"errors"
	"fmt"
	"strings"
)

// AuthMethod selects the access point security.
type AuthMethod int

const (
	AuthNone AuthMethod = iota
	AuthWPA2Personal
)

func (a AuthMethod) String() string {
	switch a {
	case AuthNone:
		return "none"
	case AuthWPA2Personal:
		return "wpa2-personal"
	default:
		return fmt.Sprintf("AuthMethod(%d)", int(a))
	}
}

// Protocol is a set of 802.11 PHY modes.
type Protocol uint8

const (
	Protocol80211B Protocol = 1 << iota
	Protocol80211G
	Protocol80211N
)

func (p Protocol) String() string {
	var parts []string
	if p&Protocol80211B != 0 {
		parts = append(parts, "b")
	}
	if p&Protocol80211G != 0 {
		parts = append(parts, "g")
	}
	if p&Protocol80211N != 0 {
		parts = append(parts, "n")
	}
	if len(parts) == 0 {
		return "none"
	}
	return "802.11" + strings.Join(parts, "/")
}

// ErrInvalidConfig wraps every configuration validation failure.
var ErrInvalidConfig = errors.New("wifi: invalid access point configuration")

// APConfig is the access point configuration applied on every (re)start.
type APConfig struct {
	SSID           string
	Hidden         bool
	Channel        uint8
	Protocols      Protocol
	Auth           AuthMethod
	Password       string
	MaxConnections int
}

// DefaultAPConfig returns the fixed configuration of the diagnostic AP.
func DefaultAPConfig() APConfig {
	return APConfig{
		SSID:           "ion-esp-diag",
		Channel:        1,
		Protocols:      Protocol80211B | Protocol80211G | Protocol80211N,
		Auth:           AuthWPA2Personal,
		Password:       "p@ssw0rd",
		MaxConnections: 5,
	}
}

func (c APConfig) Validate() error {
	if n := len(c.SSID); n == 0 || n > 32 {
		return fmt.Errorf("%w: SSID length %d", ErrInvalidConfig, n)
	}
	if c.Channel < 1 || c.Channel > 13 {
		return fmt.Errorf("%w: channel %d", ErrInvalidConfig, c.Channel)
	}
	if c.Protocols == 0 {
		return fmt.Errorf("%w: no 802.11 protocol enabled", ErrInvalidConfig)
	}
	if c.MaxConnections < 1 || c.MaxConnections > 10 {
		return fmt.Errorf("%w: max connections %d", ErrInvalidConfig, c.MaxConnections)
	}
	switch c.Auth {
	case AuthNone:
	case AuthWPA2Personal:
		if n := len(c.Password); n < 8 || n > 63 {
			return fmt.Errorf("%w: WPA2 passphrase length %d", ErrInvalidConfig, n)
		}
	default:
		return fmt.Errorf("%w: auth method %v", ErrInvalidConfig, c.Auth)
	}
	return nil
}
